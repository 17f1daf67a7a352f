package ics

import "strings"

// Unescape reverses RFC 5545 TEXT escaping. The substitutions run one after
// another in a fixed order: \, then \; then \\ then \n.
func Unescape(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, `\,`, ",")
	text = strings.ReplaceAll(text, `\;`, ";")
	text = strings.ReplaceAll(text, `\\`, `\`)
	text = strings.ReplaceAll(text, `\n`, "\n")
	return text
}
