package alert

import "strings"

// render performs substitution-only templating over tmpl: {{key}} is
// replaced by values[key] (empty string if absent), and a literal "{{" is
// produced by writing "{{{{" in the source template. There are no control
// structures: cmd-type sinks pass the rendered result to a shell, and
// substitution-only templates keep that surface small.
func render(tmpl string, values map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		if strings.HasPrefix(tmpl[i:], "{{{{") {
			b.WriteString("{{")
			i += 4
			continue
		}
		if strings.HasPrefix(tmpl[i:], "{{") {
			end := strings.Index(tmpl[i+2:], "}}")
			if end < 0 {
				// unterminated placeholder: emit verbatim
				b.WriteString(tmpl[i:])
				break
			}
			key := strings.TrimSpace(tmpl[i+2 : i+2+end])
			b.WriteString(values[key])
			i += 2 + end + 2
			continue
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}
