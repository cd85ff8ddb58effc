// Package langmeta resolves display metadata (native name and emoji flag)
// for the language codes found in lingoconfig.json and in API responses.
package langmeta

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	Name string
	Flag string
}

// canonicalize turns "pt_br" or " PT-br " into the BCP 47 form "pt-BR".
// Codes that cannot be parsed are returned trimmed but otherwise unchanged.
func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	tag, err := language.Parse(normalized)
	if err != nil {
		return normalized
	}
	return tag.String()
}

// Valid reports whether lang is a well-formed, known language code.
// Underscores are accepted as separators.
func Valid(lang string) bool {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return false
	}
	_, err := language.Parse(normalized)
	return err == nil
}

// Resolve returns best-effort language metadata for a language code,
// supporting variants like pt_BR and pt-BR. The name is the language's
// name in itself; unknown codes resolve to the code with no flag.
func Resolve(lang string) Meta {
	if !Valid(lang) {
		return Meta{Name: lang}
	}
	tag := language.Make(canonicalize(lang))

	name := display.Self.Name(tag)
	if name == "" {
		return Meta{Name: lang}
	}
	return Meta{
		Name: cases.Title(tag, cases.NoLower).String(name),
		Flag: flag(tag),
	}
}

// flag builds the regional indicator pair for the tag's region, using the
// most likely region when the code has none ("de" -> DE).
func flag(tag language.Tag) string {
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	code := region.String()
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return ""
	}
	const regionalIndicatorA = 0x1F1E6
	return string([]rune{
		regionalIndicatorA + rune(code[0]-'A'),
		regionalIndicatorA + rune(code[1]-'A'),
	})
}
