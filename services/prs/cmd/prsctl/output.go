package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"prsd/pkg/prsproto"
	"prsd/pkg/render"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json, or yaml)", format)
	}
}

// messageView is the structured form of a reply for json and yaml output.
type messageView struct {
	Kind        string `json:"kind" yaml:"kind"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Port        uint16 `json:"port" yaml:"port"`
	Status      string `json:"status" yaml:"status"`
}

func viewOf(m prsproto.Message) messageView {
	return messageView{
		Kind:        m.Type.String(),
		ServiceName: m.ServiceName,
		Port:        m.Port,
		Status:      m.Status.String(),
	}
}

func writeMessage(w io.Writer, format string, m prsproto.Message) error {
	if format == outputTable {
		_, err := fmt.Fprintln(w, m.String())
		return err
	}
	return writeStructured(w, format, viewOf(m))
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// writeView prints v as JSON or YAML, or through the named template as an
// aligned table.
func writeView(w io.Writer, format, tmpl string, v any) error {
	if format != outputTable {
		return writeStructured(w, format, v)
	}
	engine, err := render.New()
	if err != nil {
		return err
	}
	out, err := engine.Render(tmpl, v)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := io.WriteString(tw, out); err != nil {
		return err
	}
	return tw.Flush()
}
