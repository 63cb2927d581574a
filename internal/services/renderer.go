package services

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Renderer substitutes {{name}} placeholders. Unknown names render empty.
type Renderer struct{}

func (Renderer) Render(body string, vars map[string]string) string {
	out := placeholder.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return vars[name]
	})
	return strings.TrimSpace(out)
}
