package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type testTable struct{}

func (testTable) Header() []string { return []string{"APP", "PROVIDER", "STATE"} }
func (testTable) Rows() [][]string {
	return [][]string{
		{"claude", "primary", "closed"},
		{"claude", "backup, eu", "open"},
	}
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}

	output, err := formatter.Format("test message")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(output) != "test message\n" {
		t.Errorf("Format() = %q, want %q", string(output), "test message\n")
	}
}

func TestTextFormatterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, testTable{}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	want := "APP     PROVIDER    STATE\n" +
		"claude  primary     closed\n" +
		"claude  backup, eu  open\n"
	if buf.String() != want {
		t.Errorf("FormatTo() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   interface{}
		indent bool
	}{
		{name: "simple string", data: "test"},
		{name: "map with indent", data: map[string]string{"key": "value"}, indent: true},
		{
			name: "struct",
			data: struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			}{Name: "test", Value: 42},
			indent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var result interface{}
			if err := json.Unmarshal(output, &result); err != nil {
				t.Errorf("Format() produced invalid JSON: %v", err)
			}
			if !bytes.HasSuffix(output, []byte("\n")) {
				t.Errorf("Format() = %q, want trailing newline", output)
			}
		})
	}
}

func TestJSONFormatterIndent(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&JSONFormatter{Indent: true}).FormatTo(buf, map[string]int{"b": 2}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "{\n  \"b\": 2\n}\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestJSONFormatterColor(t *testing.T) {
	out, err := (&JSONFormatter{Indent: true, Color: true}).Format(map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(string(out), "\x1b[") {
		t.Errorf("Format() = %q, want ANSI colors", out)
	}
}

func TestCSVFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&CSVFormatter{}).FormatTo(buf, testTable{}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "APP,PROVIDER,STATE\nclaude,primary,closed\nclaude,\"backup, eu\",open\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	out, err := (&CSVFormatter{Headers: []string{"a", "p", "s"}}).Format(testTable{})
	if err != nil || !strings.HasPrefix(string(out), "a,p,s\n") {
		t.Errorf("Format() with headers = %q, %v", out, err)
	}

	if _, err := (&CSVFormatter{}).Format("plain"); !errors.Is(err, ErrNotTabular) {
		t.Errorf("Format(string) error = %v, want ErrNotTabular", err)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		if got := fmt.Sprintf("%T", NewFormatter(tt.format)); got != tt.want {
			t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatText, "JSON": FormatJSON, "csv": FormatCSV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("ParseFormat(yaml) succeeded")
	}
}
