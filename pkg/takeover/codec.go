package takeover

import (
	"bytes"
	"fmt"

	"mercator-hq/switchboard/pkg/providers"
)

// Codec reads and edits the base URL field of one CLI's config file format.
// Edits change only that field; every other byte of the document is kept.
// Empty input is treated as an empty document.
type Codec interface {
	// Validate reports whether data is a well-formed document.
	Validate(data []byte) error

	// BaseURL returns the current base URL and whether the field is present.
	BaseURL(data []byte) (string, bool, error)

	// SetBaseURL returns data with the base URL field set to url, adding the
	// field if needed.
	SetBaseURL(data []byte, url string) ([]byte, error)

	// RemoveBaseURL returns data without the base URL field.
	RemoveBaseURL(data []byte) ([]byte, error)
}

// CodecFor returns the codec for app's config file.
func CodecFor(app providers.App) Codec {
	switch app {
	case providers.AppClaude:
		return claudeCodec{}
	case providers.AppCodex:
		return codexCodec{}
	case providers.AppGemini:
		return geminiCodec{}
	default:
		panic(fmt.Sprintf("takeover: no codec for %s", app))
	}
}

func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

// splitLines splits data into lines that keep their terminators, so joining
// them reproduces data exactly.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	lines := bytes.SplitAfter(data, []byte("\n"))
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinLines(lines [][]byte) []byte {
	return bytes.Join(lines, nil)
}

// lineEnding returns the terminator of line: "\r\n", "\n" or "".
func lineEnding(line []byte) []byte {
	switch {
	case bytes.HasSuffix(line, []byte("\r\n")):
		return []byte("\r\n")
	case bytes.HasSuffix(line, []byte("\n")):
		return []byte("\n")
	default:
		return nil
	}
}

// insertLine inserts line at index i, terminating the previous line first if
// it was the unterminated last line of the file.
func insertLine(lines [][]byte, i int, line []byte) [][]byte {
	if i > 0 && len(lineEnding(lines[i-1])) == 0 {
		prev := append([]byte(nil), lines[i-1]...)
		lines[i-1] = append(prev, '\n')
	}
	out := make([][]byte, 0, len(lines)+1)
	out = append(out, lines[:i]...)
	out = append(out, line)
	return append(out, lines[i:]...)
}

func removeLine(lines [][]byte, i int) [][]byte {
	out := make([][]byte, 0, len(lines)-1)
	out = append(out, lines[:i]...)
	return append(out, lines[i+1:]...)
}
