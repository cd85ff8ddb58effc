// Package render produces the text block inserted between the markers of
// a language file.
//
// Each translation becomes one line of the configured template, with the
// literal placeholders {{key}} and {{value}} substituted:
//
//	template: "  '{{key}}': '{{value}}',"
//	result:   "  'hello': 'Hello',"
//
// Rendering is pure: identical input always yields byte-identical output,
// which is what makes repeated sync runs idempotent.
package render

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/minios-linux/lingosync/langdata"
)

// Placeholders recognised in templates.
const (
	KeyPlaceholder   = "{{key}}"
	ValuePlaceholder = "{{value}}"
)

// Replace is a literal from → to substitution applied to every occurrence.
type Replace struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Rules are the key/value substitutions applied before insertion.
type Rules struct {
	KeyReplaces   []Replace
	ValueReplaces []Replace
	// ValueToUnicode escapes non-ASCII characters in values as \uXXXX.
	ValueToUnicode bool
}

// Render returns one template line per translation, joined by "\n",
// without a trailing newline. A nil or empty table yields "".
func Render(t *langdata.Translations, template string, rules Rules) string {
	keys := t.Keys()
	if len(keys) == 0 {
		return ""
	}

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value, _ := t.Get(key)
		lines = append(lines, Line(template, key, value, rules))
	}
	return strings.Join(lines, "\n")
}

// Line renders a single key/value pair.
func Line(template, key, value string, rules Rules) string {
	key = applyReplaces(key, rules.KeyReplaces)
	value = applyReplaces(value, rules.ValueReplaces)
	if rules.ValueToUnicode {
		value = EscapeNonASCII(value)
	}
	// A single pass keeps a substituted key containing "{{value}}" literal.
	r := strings.NewReplacer(KeyPlaceholder, key, ValuePlaceholder, value)
	return r.Replace(template)
}

func applyReplaces(s string, rules []Replace) string {
	for _, rp := range rules {
		if rp.From == "" {
			continue
		}
		s = strings.ReplaceAll(s, rp.From, rp.To)
	}
	return s
}

// EscapeNonASCII rewrites every character ≥ U+0080 as \uXXXX with upper-case
// hex digits. Characters outside the BMP become a UTF-16 surrogate pair,
// each half escaped separately, which is what Java, Dart and JavaScript
// string literals expect. ASCII is left untouched.
func EscapeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04X\u%04X`, hi, lo)
			continue
		}
		fmt.Fprintf(&b, `\u%04X`, r)
	}
	return b.String()
}
