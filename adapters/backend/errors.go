package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

// httpError is the cause attached to AuthErrors built from non-2xx responses
type httpError struct {
	status  int
	message string // backend-supplied, may be empty
}

func newHTTPError(resp *http.Response) *httpError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &httpError{status: resp.StatusCode, message: parseErrorMessage(body)}
}

func (e *httpError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s: %s", e.statusText(), e.message)
	}
	return e.statusText()
}

func (e *httpError) statusText() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, http.StatusText(e.status))
}

// StatusCode reports the HTTP status of a backend error, if err came from one
func StatusCode(err error) (int, bool) {
	he, ok := asHTTPError(err)
	if !ok {
		return 0, false
	}
	return he.status, true
}

func asHTTPError(err error) (*httpError, bool) {
	var he *httpError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// parseErrorMessage extracts the human-readable message from an error body.
// Unparseable or empty bodies yield "".
func parseErrorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	for _, m := range []string{eb.Message, eb.Detail, eb.Error} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	return ""
}
