package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"mercator-hq/switchboard/pkg/proxy/types"
)

// WriteJSONResponse writes a JSON response with the given status code.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes an error envelope with the status code its type
// maps to.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// IsEventStream reports whether a response is a server-sent event stream.
func IsEventStream(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/event-stream"
}

// streamError records which side of a relay failed.
type streamError struct {
	err      error
	upstream bool
}

func (e *streamError) Error() string { return e.err.Error() }
func (e *streamError) Unwrap() error { return e.err }

// relay copies src to w chunk by chunk, flushing after every chunk so
// streamed tokens reach the CLI as soon as the provider sends them. Every
// chunk is also written to tap. It returns the number of bytes written to w.
func relay(w http.ResponseWriter, src io.Reader, tap io.Writer) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = tap.Write(chunk)
			wn, werr := w.Write(chunk)
			written += int64(wn)
			if werr != nil {
				return written, &streamError{err: werr}
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, &streamError{err: ferr}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &streamError{err: rerr, upstream: true}
		}
	}
}
