// Package depfile renders the -M/-MD dependency-file output: one Make
// rule naming the object-file target and every file the preprocessor's
// #include chain resolved.
package depfile

import "strings"

// Render formats target's dependency rule: "<target>: <dep> <dep> ...\n".
// deps is used as given (insertion order, already deduplicated by the
// preprocessor's include resolver).
func Render(target string, deps []string) string {
	var b strings.Builder
	b.WriteString(target)
	b.WriteString(":")
	for _, d := range deps {
		b.WriteString(" ")
		b.WriteString(d)
	}
	b.WriteString("\n")
	return b.String()
}
