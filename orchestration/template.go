package orchestration

import (
	"errors"
	"strings"
)

// Template syntax is {{identifier}} where identifier matches
// [A-Za-z_][A-Za-z0-9_]*. No escaping, no nesting. The scanner below is a
// plain tokenizer; substitution is single-pass and never re-scans
// substituted text.

// UserRequestVariable resolves to the workflow's original user request and
// is never a task dependency.
const UserRequestVariable = "user_request"

// PrevOutputVariable is the stage-style convention for "output of the
// preceding task"; the analyzer turns it into an implicit dependency.
const PrevOutputVariable = "prev_output"

var errMalformedReference = errors.New("malformed template reference")

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// scanReference reads an {{identifier}} starting at the "{{" found at
// position i. It returns the identifier and the position just past the
// closing braces, or an error when the braces don't enclose a valid
// identifier.
func scanReference(template string, i int) (ident string, next int, err error) {
	j := i + 2
	start := j
	if j >= len(template) || !isIdentStart(template[j]) {
		return "", 0, errMalformedReference
	}
	for j < len(template) && isIdentChar(template[j]) {
		j++
	}
	if !strings.HasPrefix(template[j:], "}}") {
		return "", 0, errMalformedReference
	}
	return template[start:j], j + 2, nil
}

// ExtractReferences returns every valid {{identifier}} in the template, in
// first-occurrence order, without duplicates. Malformed brace pairs are
// left for render-time rejection.
func ExtractReferences(template string) []string {
	var refs []string
	seen := make(map[string]bool)

	for i := 0; i+1 < len(template); {
		if template[i] != '{' || template[i+1] != '{' {
			i++
			continue
		}
		ident, next, err := scanReference(template, i)
		if err != nil {
			i += 2
			continue
		}
		if !seen[ident] {
			seen[ident] = true
			refs = append(refs, ident)
		}
		i = next
	}
	return refs
}

// RenderTemplate substitutes every {{identifier}} with its value from vars.
// Any unresolved or malformed reference is a *TemplateError: by the time a
// template is rendered the analyzer has validated every reference, so a
// miss here indicates a bug upstream.
func RenderTemplate(taskName, template string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		if i+1 < len(template) && template[i] == '{' && template[i+1] == '{' {
			ident, next, err := scanReference(template, i)
			if err != nil {
				return "", &TemplateError{TaskName: taskName, Identifier: braceContext(template, i)}
			}
			value, ok := vars[ident]
			if !ok {
				return "", &TemplateError{TaskName: taskName, Identifier: ident}
			}
			b.WriteString(value)
			i = next
			continue
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String(), nil
}

// braceContext returns a short excerpt of the malformed reference for the
// error message.
func braceContext(template string, i int) string {
	end := i + 16
	if end > len(template) {
		end = len(template)
	}
	return template[i:end]
}
