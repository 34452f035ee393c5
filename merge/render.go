package merge

import "strings"

// Template is a subject/body pair, each side possibly containing
// {{FieldName}} placeholders.
type Template struct {
	Subject string
	Body    string
}

// Render substitutes every {{Field}} occurrence in template with the
// recipient's value for that field. Matching is exact and case-sensitive.
// Placeholders naming fields the recipient does not have are left verbatim.
//
// Substitution is a single pass over the original template: substituted
// values are emitted as literal text and never re-scanned, so a value that
// itself contains {{...}} syntax survives untouched. Rendering the output a
// second time is therefore not guaranteed to be a no-op.
func Render(template string, r Recipient) string {
	if len(r) == 0 || !strings.Contains(template, "{{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		if template[i] != '{' || !strings.HasPrefix(template[i:], "{{") {
			b.WriteByte(template[i])
			i++
			continue
		}
		close := strings.Index(template[i+2:], "}}")
		if close < 0 {
			b.WriteString(template[i:])
			break
		}
		name := template[i+2 : i+2+close]
		if val, ok := r[name]; ok {
			b.WriteString(val)
			i += 2 + close + 2
			continue
		}
		// Not a known field. Emit one brace and rescan from the next byte
		// so forms like {{{Name}}} still find the inner placeholder.
		b.WriteByte('{')
		i++
	}
	return b.String()
}
