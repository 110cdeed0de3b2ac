package workflow

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(template.New("prompts").ParseFS(promptFS, "prompts/*.tmpl"))

// renderPrompt fills the named prompt template with data.
func renderPrompt(name string, data map[string]interface{}) (string, error) {
	var sb strings.Builder
	if err := promptTemplates.ExecuteTemplate(&sb, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return sb.String(), nil
}
