// Package render turns lease snapshots and journal listings into the
// tab-separated tables prsctl prints. Unset names and times show as "-".
package render

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Engine holds the lease table (leases.tmpl), single lease (lease.tmpl) and
// event listing (events.tmpl) views.
type Engine struct {
	templates *template.Template
}

// New parses the embedded views.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(template.FuncMap{
		"timestamp": timestamp,
		"orDash":    orDash,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render formats data with the named view. Times are printed in UTC as RFC 3339.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil || e.templates == nil {
		return "", fmt.Errorf("nil engine")
	}

	buf := bytes.NewBuffer(nil)
	if err := e.templates.ExecuteTemplate(buf, name, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
