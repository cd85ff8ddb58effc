// Package arbfile implements reading and writing of Flutter ARB (Application
// Resource Bundle) files, the format Flutter apps load synced Lingo strings
// from.
//
// ARB files are JSON files with a specific structure:
//
//   - "@@locale" holds the locale (e.g. "en", "zh_Hans_CN").
//   - Keys starting with "@" (other than "@@locale") are metadata entries
//     (e.g. "@greeting") and are preserved verbatim.
//   - All other string values are messages.
//
// Key order is preserved on parse and write, and metadata keys immediately
// follow their message key.
package arbfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minios-linux/lingosync/langdata"
)

// LocaleKey is the ARB key holding the file's locale.
const LocaleKey = "@@locale"

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// entry is a single key in the ARB file.
type entry struct {
	key      string
	value    string // message value
	isMeta   bool   // true for @-keys
	rawValue []byte // original JSON value bytes (preserved for meta)
}

// File represents a parsed ARB file.
type File struct {
	locale  string
	entries []entry
	index   map[string]int
}

// New returns an empty file for locale.
func New(locale string) *File {
	return &File{locale: locale, index: make(map[string]int)}
}

// FromTranslations builds an ARB file from one language's translations.
// Only keys starting with prefix are kept, with the prefix removed; an
// empty prefix keeps every key. Keys left empty by the strip are skipped.
func FromTranslations(t *langdata.Translations, locale, prefix string) *File {
	f := New(locale)
	for _, key := range t.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.HasPrefix(name, "@") {
			continue
		}
		value, _ := t.Get(key)
		f.Set(name, value)
	}
	return f
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses an ARB file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses ARB content from a byte slice.
func Parse(data []byte) (*File, error) {
	// Token streaming keeps the document's key order.
	f := New("")
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parsing ARB: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parsing ARB: expected '{', got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing ARB key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("parsing ARB: expected string key, got %T", keyTok)
		}

		var rawVal json.RawMessage
		if err := dec.Decode(&rawVal); err != nil {
			return nil, fmt.Errorf("parsing ARB value for %q: %w", key, err)
		}

		if key == LocaleKey {
			if err := json.Unmarshal(rawVal, &f.locale); err != nil {
				return nil, fmt.Errorf("parsing ARB: %s is not a string", LocaleKey)
			}
			continue
		}

		e := entry{key: key, isMeta: strings.HasPrefix(key, "@"), rawValue: rawVal}
		if !e.isMeta {
			if err := json.Unmarshal(rawVal, &e.value); err != nil {
				return nil, fmt.Errorf("parsing ARB: value of %q is not a string", key)
			}
		}
		f.index[key] = len(f.entries)
		f.entries = append(f.entries, e)
	}

	return f, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Locale returns the @@locale value.
func (f *File) Locale() string { return f.locale }

// SetLocale replaces the @@locale value.
func (f *File) SetLocale(locale string) { f.locale = locale }

// Keys returns all message (non-metadata) keys in document order.
func (f *File) Keys() []string {
	var keys []string
	for _, e := range f.entries {
		if !e.isMeta {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Get returns the value of a message key.
func (f *File) Get(key string) (string, bool) {
	if idx, ok := f.index[key]; ok && !f.entries[idx].isMeta {
		return f.entries[idx].value, true
	}
	return "", false
}

// Set sets a message value. A new key is appended; an existing one keeps
// its position. Metadata keys cannot be set this way.
func (f *File) Set(key, value string) bool {
	if strings.HasPrefix(key, "@") {
		return false
	}
	raw, _ := json.Marshal(value)
	if idx, ok := f.index[key]; ok {
		f.entries[idx].value = value
		f.entries[idx].rawValue = raw
		return true
	}
	f.index[key] = len(f.entries)
	f.entries = append(f.entries, entry{key: key, value: value, rawValue: raw})
	return true
}

// Meta returns the raw "@key" metadata of a message key.
func (f *File) Meta(key string) (json.RawMessage, bool) {
	if idx, ok := f.index["@"+key]; ok {
		return f.entries[idx].rawValue, true
	}
	return nil, false
}

// KeepMeta copies the "@key" metadata of every message key of f from prev,
// placing each right after its message. Metadata for keys f no longer has
// is dropped. It returns the number of metadata entries copied.
func (f *File) KeepMeta(prev *File) int {
	if prev == nil {
		return 0
	}
	rebuilt := make([]entry, 0, len(f.entries))
	index := make(map[string]int, len(f.index))
	n := 0
	for _, e := range f.entries {
		if e.isMeta {
			continue
		}
		index[e.key] = len(rebuilt)
		rebuilt = append(rebuilt, e)
		if raw, ok := prev.Meta(e.key); ok {
			index["@"+e.key] = len(rebuilt)
			rebuilt = append(rebuilt, entry{key: "@" + e.key, isMeta: true, rawValue: raw})
			n++
		}
	}
	f.entries = rebuilt
	f.index = index
	return n
}

// Len returns the number of message keys.
func (f *File) Len() int {
	n := 0
	for _, e := range f.entries {
		if !e.isMeta {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the ARB file to JSON with 2-space indentation.
// The @@locale key is always written first. Non-ASCII text is written as
// is, not escaped.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")

	first := true
	writeKey := func(key string) {
		if !first {
			buf.WriteString(",\n")
		}
		first = false
		buf.WriteString("  ")
		buf.Write(marshalString(key))
		buf.WriteString(": ")
	}

	if f.locale != "" {
		writeKey(LocaleKey)
		buf.Write(marshalString(f.locale))
	}

	for _, e := range f.entries {
		writeKey(e.key)
		if e.isMeta {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, e.rawValue, "  ", "  "); err != nil {
				return nil, fmt.Errorf("metadata %q: %w", e.key, err)
			}
			buf.Write(pretty.Bytes())
		} else {
			buf.Write(marshalString(e.value))
		}
	}

	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

// marshalString encodes s as a JSON string without HTML escaping.
func marshalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.Encode(s)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// WriteFile serialises and writes to path, creating parent directories.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
