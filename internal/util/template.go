package util

import (
	"bytes"
	"strings"
	"text/template"
)

// RenderTemplate replaces template variables in instruction text using Go's
// text/template package with the session scratch state as data. Missing keys
// render as empty strings via the "state" helper so prompts degrade instead
// of failing when an upstream step produced no output.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("instruction").Funcs(template.FuncMap{
		"state": func(key string) any {
			v, ok := state[key]
			if !ok || v == nil {
				return ""
			}
			return v
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return buf.String(), nil
}
