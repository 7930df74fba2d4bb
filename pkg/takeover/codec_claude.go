package takeover

import (
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// claudeBaseURLPath is the settings.json path the Claude CLI reads its API
// root from.
const claudeBaseURLPath = "env.ANTHROPIC_BASE_URL"

// claudeCodec edits ~/.claude/settings.json. gjson/sjson splice the value in
// place, so formatting, key order and unrelated fields are untouched.
type claudeCodec struct{}

func (claudeCodec) Validate(data []byte) error {
	if isBlank(data) {
		return nil
	}
	if !gjson.ValidBytes(data) {
		return errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return errors.New("top-level value is not an object")
	}
	if env := doc.Get("env"); env.Exists() && !env.IsObject() {
		return errors.New(`"env" is not an object`)
	}
	return nil
}

func (c claudeCodec) BaseURL(data []byte) (string, bool, error) {
	if err := c.Validate(data); err != nil {
		return "", false, err
	}
	if isBlank(data) {
		return "", false, nil
	}
	r := gjson.GetBytes(data, claudeBaseURLPath)
	if !r.Exists() {
		return "", false, nil
	}
	if r.Type != gjson.String {
		return "", false, errors.New(claudeBaseURLPath + " is not a string")
	}
	return r.String(), true, nil
}

func (c claudeCodec) SetBaseURL(data []byte, url string) ([]byte, error) {
	if err := c.Validate(data); err != nil {
		return nil, err
	}
	if isBlank(data) {
		out, err := sjson.SetBytes([]byte("{}"), claudeBaseURLPath, url)
		if err != nil {
			return nil, err
		}
		return pretty.Pretty(out), nil
	}
	return sjson.SetBytes(clone(data), claudeBaseURLPath, url)
}

func (c claudeCodec) RemoveBaseURL(data []byte) ([]byte, error) {
	if err := c.Validate(data); err != nil {
		return nil, err
	}
	if isBlank(data) || !gjson.GetBytes(data, claudeBaseURLPath).Exists() {
		return data, nil
	}
	return sjson.DeleteBytes(clone(data), claudeBaseURLPath)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
