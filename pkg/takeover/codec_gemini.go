package takeover

import (
	"bytes"
	"fmt"
	"strings"
)

const geminiBaseURLKey = "GOOGLE_GEMINI_BASE_URL"

// geminiCodec edits ~/.gemini/.env, a dotenv file of KEY=VALUE lines with
// optional "export " prefixes, quotes and # comments.
type geminiCodec struct{}

type envLine struct {
	key    string
	value  string
	export bool
}

// parseEnvLine parses one dotenv line. ok is false for blank and comment lines.
func parseEnvLine(line []byte) (l envLine, ok bool, err error) {
	t := strings.TrimSpace(string(line))
	if t == "" || strings.HasPrefix(t, "#") {
		return envLine{}, false, nil
	}
	if rest, found := strings.CutPrefix(t, "export "); found {
		l.export = true
		t = strings.TrimSpace(rest)
	}
	key, value, found := strings.Cut(t, "=")
	if !found {
		return envLine{}, false, fmt.Errorf("line %q is not KEY=VALUE", t)
	}
	l.key = strings.TrimSpace(key)
	if !validEnvKey(l.key) {
		return envLine{}, false, fmt.Errorf("invalid variable name %q", l.key)
	}
	l.value = unquoteEnvValue(strings.TrimSpace(value))
	return l, true, nil
}

func validEnvKey(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '.' && i > 0:
		default:
			return false
		}
	}
	return true
}

func unquoteEnvValue(v string) string {
	if len(v) >= 2 {
		if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
			return v[1 : len(v)-1]
		}
		if q := v[0]; q == '"' || q == '\'' {
			if end := strings.IndexByte(v[1:], q); end >= 0 {
				return v[1 : end+1]
			}
		}
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

func (geminiCodec) Validate(data []byte) error {
	for _, line := range splitLines(data) {
		if _, _, err := parseEnvLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (c geminiCodec) BaseURL(data []byte) (string, bool, error) {
	var (
		value string
		found bool
	)
	for _, line := range splitLines(data) {
		l, ok, err := parseEnvLine(line)
		if err != nil {
			return "", false, err
		}
		// Later assignments override earlier ones.
		if ok && l.key == geminiBaseURLKey {
			value, found = l.value, true
		}
	}
	return value, found, nil
}

func (c geminiCodec) SetBaseURL(data []byte, url string) ([]byte, error) {
	if err := c.Validate(data); err != nil {
		return nil, err
	}

	lines := splitLines(data)
	replaced := false
	for i, line := range lines {
		l, ok, _ := parseEnvLine(line)
		if !ok || l.key != geminiBaseURLKey {
			continue
		}
		var b bytes.Buffer
		indent := line[:len(line)-len(bytes.TrimLeft(line, " \t"))]
		b.Write(indent)
		if l.export {
			b.WriteString("export ")
		}
		b.WriteString(geminiBaseURLKey + "=" + url)
		b.Write(lineEnding(line))
		lines[i] = b.Bytes()
		replaced = true
	}
	if !replaced {
		lines = insertLine(lines, len(lines), []byte(geminiBaseURLKey+"="+url+"\n"))
	}
	return joinLines(lines), nil
}

func (c geminiCodec) RemoveBaseURL(data []byte) ([]byte, error) {
	if err := c.Validate(data); err != nil {
		return nil, err
	}

	lines := splitLines(data)
	for i := len(lines) - 1; i >= 0; i-- {
		if l, ok, _ := parseEnvLine(lines[i]); ok && l.key == geminiBaseURLKey {
			lines = removeLine(lines, i)
		}
	}
	return joinLines(lines), nil
}
