package abi

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SnakeCase converts a Go identifier to the snake_case entry point form:
// InitPool -> init_pool, tokenA -> token_a, GetID -> get_id.
func SnakeCase(name string) string {
	runes := []rune(name)
	words := make([]string, 0, 4)
	start := 0
	for i := 1; i < len(runes); i++ {
		if runes[i] == '_' {
			if i > start {
				words = append(words, string(runes[start:i]))
			}
			start = i + 1
			continue
		}
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prev := runes[i-1]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
			if i > start {
				words = append(words, string(runes[start:i]))
			}
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, string(runes[start:]))
	}
	// a Caser keeps state, so each call gets its own
	return cases.Lower(language.Und).String(strings.Join(words, "_"))
}

// CamelCase converts a snake_case entry point name to an exported Go name.
func CamelCase(name string) string {
	parts := strings.Split(name, "_")
	title := cases.Title(language.Und, cases.NoLower)
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		sb.WriteString(title.String(p))
	}
	return sb.String()
}
