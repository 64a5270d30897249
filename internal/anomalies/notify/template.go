package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// DefaultTemplate renders anomaly notifications as plain text.
const DefaultTemplate = `[Anomaly {{.EventLabel}}]
Machine: {{.Machine}}
Parameter: {{.Parameter}}
Observed: {{.Observed}}
Expected: {{.Expected}}
Deviation: {{.Deviation}}
Score: {{.Score}}
Time: {{.Time}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Machine    string
	MachineID  string
	Parameter  string
	Observed   string
	Expected   string
	Deviation  string
	Score      string
	Time       string
	Event      string
	EventLabel string
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
