package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// DefaultTemplate renders a scan report as plain text.
const DefaultTemplate = `[Vibration {{.TriggerLabel}} scan] {{.Date}}
Window: {{.From}} .. {{.To}} ({{.WindowDays}} days)
Threshold: {{.Threshold}}% over {{.Offset}} reading(s)
Anomalies: {{.Count}}
{{- range .Lines}}
- {{.}}
{{- end}}
{{- if .Truncated}}
... and {{.Truncated}} more
{{- end}}`

// TemplateData provides fields for rendering a scan summary.
type TemplateData struct {
	Trigger      string
	TriggerLabel string
	Date         string
	From         string
	To           string
	WindowDays   int
	Threshold    string
	Offset       int
	Count        int
	Lines        []string
	Truncated    int
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("anomaly-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("anomaly template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
