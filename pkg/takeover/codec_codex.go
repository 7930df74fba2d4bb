package takeover

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultCodexProvider = "openai"

// codexCodec edits ~/.codex/config.toml. BurntSushi/toml parses the document
// to find which provider is active and to verify every edit; the edit itself
// is a line splice so comments and layout survive.
type codexCodec struct{}

// codexField locates the base URL key: either a key inside the
// [model_providers.<name>] table or the top-level openai_base_url.
type codexField struct {
	table []string
	key   string
}

func (codexCodec) decode(data []byte) (map[string]any, error) {
	doc := make(map[string]any)
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c codexCodec) Validate(data []byte) error {
	_, err := c.decode(data)
	return err
}

// field resolves where the active provider's base URL lives. The active
// provider is the top-level model_provider key, "openai" when unset.
func (codexCodec) field(doc map[string]any) (codexField, error) {
	active := defaultCodexProvider
	if v, ok := doc["model_provider"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return codexField{}, errors.New("model_provider must be a non-empty string")
		}
		active = s
	}

	if mp, ok := doc["model_providers"].(map[string]any); ok {
		if _, ok := mp[active].(map[string]any); ok {
			return codexField{table: []string{"model_providers", active}, key: "base_url"}, nil
		}
	}
	if active == defaultCodexProvider {
		return codexField{key: "openai_base_url"}, nil
	}
	return codexField{}, fmt.Errorf("model_provider %q has no [model_providers.%s] table", active, active)
}

func (f codexField) lookup(doc map[string]any) (any, bool) {
	m := doc
	for _, name := range f.table {
		next, ok := m[name].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	v, ok := m[f.key]
	return v, ok
}

func (c codexCodec) BaseURL(data []byte) (string, bool, error) {
	doc, err := c.decode(data)
	if err != nil {
		return "", false, err
	}
	f, err := c.field(doc)
	if err != nil {
		return "", false, err
	}
	v, ok := f.lookup(doc)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s is not a string", f.key)
	}
	return s, true, nil
}

func (c codexCodec) SetBaseURL(data []byte, url string) ([]byte, error) {
	doc, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	f, err := c.field(doc)
	if err != nil {
		return nil, err
	}

	lines := splitLines(data)
	start, end, ok := tomlSection(lines, f.table)
	if !ok {
		return nil, fmt.Errorf("[%s] must be declared with a table header to be rewritten", strings.Join(f.table, "."))
	}

	value := tomlString(url)
	if i := tomlKeyLine(lines, start, end, f.key); i >= 0 {
		lines[i] = replaceTOMLValue(lines[i], value)
	} else {
		at := end
		for at > start && isBlank(lines[at-1]) {
			at--
		}
		lines = insertLine(lines, at, []byte(f.key+" = "+value+"\n"))
	}

	out := joinLines(lines)
	if got, ok, err := c.BaseURL(out); err != nil || !ok || got != url {
		return nil, errors.New("rewritten config.toml does not read back the new base URL")
	}
	return out, nil
}

func (c codexCodec) RemoveBaseURL(data []byte) ([]byte, error) {
	doc, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	f, err := c.field(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := f.lookup(doc); !ok {
		return data, nil
	}

	lines := splitLines(data)
	start, end, ok := tomlSection(lines, f.table)
	if !ok {
		return nil, fmt.Errorf("[%s] must be declared with a table header to be rewritten", strings.Join(f.table, "."))
	}
	i := tomlKeyLine(lines, start, end, f.key)
	if i < 0 {
		return nil, fmt.Errorf("%s is not declared on its own line", f.key)
	}
	out := joinLines(removeLine(lines, i))
	if err := c.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// tomlSection returns the line range holding the keys of table. A nil table
// is the top level: every line before the first header.
func tomlSection(lines [][]byte, table []string) (start, end int, found bool) {
	start = -1
	if table == nil {
		start = 0
	}
	for i, line := range lines {
		header, ok := tomlHeader(line)
		if !ok {
			continue
		}
		if start >= 0 {
			return start, i, true
		}
		if equalPath(header, table) {
			start = i + 1
		}
	}
	if start < 0 {
		return 0, 0, false
	}
	return start, len(lines), true
}

// tomlHeader parses a [table] or [[array]] header line into its key path.
func tomlHeader(line []byte) ([]string, bool) {
	t := bytes.TrimSpace(line)
	if len(t) < 2 || t[0] != '[' {
		return nil, false
	}
	t = bytes.TrimLeft(t, "[")
	end := bytes.IndexByte(t, ']')
	if end < 0 {
		return nil, false
	}
	return splitTOMLKey(string(t[:end])), true
}

// tomlKeyLine returns the index of the line in [start, end) assigning key, or -1.
func tomlKeyLine(lines [][]byte, start, end int, key string) int {
	for i := start; i < end; i++ {
		t := bytes.TrimSpace(lines[i])
		if len(t) == 0 || t[0] == '#' || t[0] == '[' {
			continue
		}
		eq := bytes.IndexByte(t, '=')
		if eq < 0 {
			continue
		}
		path := splitTOMLKey(string(t[:eq]))
		if len(path) == 1 && path[0] == key {
			return i
		}
	}
	return -1
}

func splitTOMLKey(s string) []string {
	parts := strings.Split(s, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
	}
	return parts
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// replaceTOMLValue swaps the value of a key line, keeping the key spelling,
// indentation, any trailing comment and the line ending.
func replaceTOMLValue(line []byte, value string) []byte {
	eol := lineEnding(line)
	body := line[:len(line)-len(eol)]
	eq := bytes.IndexByte(body, '=')

	rest := bytes.TrimLeft(body[eq+1:], " \t")
	var trailer []byte
	if n := tomlValueLen(rest); n < len(rest) {
		trailer = rest[n:]
	}

	out := make([]byte, 0, len(line)+len(value))
	out = append(out, body[:eq+1]...)
	out = append(out, ' ')
	out = append(out, value...)
	out = append(out, trailer...)
	return append(out, eol...)
}

// tomlValueLen returns the length of the single-line string value at the
// start of b. Anything else is treated as running to the end of the line.
func tomlValueLen(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	switch b[0] {
	case '"':
		for i := 1; i < len(b); i++ {
			switch b[i] {
			case '\\':
				i++
			case '"':
				return i + 1
			}
		}
	case '\'':
		if j := bytes.IndexByte(b[1:], '\''); j >= 0 {
			return j + 2
		}
	}
	return len(b)
}

var tomlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func tomlString(s string) string {
	return `"` + tomlEscaper.Replace(s) + `"`
}
