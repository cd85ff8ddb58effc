// Package langdata turns raw Lingo API responses into per-language
// translation tables.
//
// Every response carries an array of translation records, one record per
// translation key, each listing the value of that key in every language:
//
//	{
//	  "code": 200,
//	  "data": [
//	    {"key": "hello", "longest_language": "de",
//	     "languages": [{"code": "en", "value": "Hello"}, {"code": "de", "value": "Hallo"}]}
//	  ]
//	}
//
// The array lives in the top-level "data" field unless the resource names a
// dotted path ("result.items") leading to it. Records from all resources are
// reduced in resource order: a later record overwrites an earlier one for
// the same language and key, but the key keeps the position it was first
// seen at, so rendering order is stable across runs.
package langdata

// ---------------------------------------------------------------------------
// Records (wire format)
// ---------------------------------------------------------------------------

// Record is one translation key with its value in every language.
type Record struct {
	Key string `json:"key"`
	// Longest is passed through untouched; the API uses it to flag the
	// language with the longest rendering of the key.
	Longest   any     `json:"longest_language"`
	Languages []Value `json:"languages"`
}

// Value is a single language's rendering of a record's key.
type Value struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// ---------------------------------------------------------------------------
// Ordered translation table
// ---------------------------------------------------------------------------

// Translations is an insertion-ordered key → value table for one language.
// The zero value is ready to use; a nil *Translations behaves as empty.
type Translations struct {
	keys   []string
	values map[string]string
}

// NewTranslations builds a table from alternating key/value pairs.
// It is mostly useful in tests.
func NewTranslations(pairs ...string) *Translations {
	t := &Translations{}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Set(pairs[i], pairs[i+1])
	}
	return t
}

// Set stores value under key. An existing key keeps its position.
func (t *Translations) Set(key, value string) {
	if t.values == nil {
		t.values = make(map[string]string)
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Get returns the value for key and whether it was found.
func (t *Translations) Get(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	v, ok := t.values[key]
	return v, ok
}

// Keys returns all keys in insertion order.
func (t *Translations) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of keys.
func (t *Translations) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Map returns a copy of the table as a plain map (order is lost).
func (t *Translations) Map() map[string]string {
	m := make(map[string]string, t.Len())
	if t == nil {
		return m
	}
	for k, v := range t.values {
		m[k] = v
	}
	return m
}

// ---------------------------------------------------------------------------
// Aggregate
// ---------------------------------------------------------------------------

// LanguageData is the aggregate of all resources for one sync run.
// It is built once and read-only afterwards.
type LanguageData struct {
	// Longest maps translation key → the record's longest_language value.
	Longest map[string]any

	order []string
	langs map[string]*Translations
}

// New returns an empty LanguageData.
func New() *LanguageData {
	return &LanguageData{
		Longest: make(map[string]any),
		langs:   make(map[string]*Translations),
	}
}

// Apply reduces records into d, left to right.
func (d *LanguageData) Apply(records []Record) {
	for _, rec := range records {
		d.Longest[rec.Key] = rec.Longest
		for _, lv := range rec.Languages {
			t, ok := d.langs[lv.Code]
			if !ok {
				t = &Translations{}
				d.langs[lv.Code] = t
				d.order = append(d.order, lv.Code)
			}
			t.Set(rec.Key, lv.Value)
		}
	}
}

// Languages returns language codes in the order they were first seen.
func (d *LanguageData) Languages() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Translations returns the table for a language code. For an unknown code
// it returns nil and false; a nil table renders as an empty block.
func (d *LanguageData) Translations(code string) (*Translations, bool) {
	t, ok := d.langs[code]
	return t, ok
}

// Keys returns the number of distinct translation keys seen.
func (d *LanguageData) Keys() int {
	return len(d.Longest)
}
