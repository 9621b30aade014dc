package cypher

import "strings"

// Normalize reduces query text to its cache key form: comments are dropped,
// runs of whitespace outside string literals become a single space, and a
// trailing semicolon is removed. Parameters stay as $name placeholders so
// two executions that differ only in parameter values share one plan.
func Normalize(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	space := false
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(query) && query[j] != c {
				if query[j] == '\\' && c != '`' {
					j++
				}
				j++
			}
			if j < len(query) {
				j++
			} else {
				j = len(query)
			}
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteString(query[i:j])
			i = j
		case strings.HasPrefix(query[i:], "//"):
			for i < len(query) && query[i] != '\n' {
				i++
			}
			space = true
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query)
			} else {
				i += end + 4
			}
			space = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			space = true
			i++
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteByte(c)
			i++
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(b.String()), ";"))
}
