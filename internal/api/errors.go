package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrTransport marks failures where no HTTP response was received.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse marks a 2xx response whose body is not the
	// documented JSON shape.
	ErrMalformedResponse = errors.New("malformed response")
)

const maxErrorBody = 1 << 20

// APIError is a non-2xx answer from the storefront backend.
type APIError struct {
	Status      int
	Code        string
	Message     string
	MFARequired bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storefront api: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("storefront api: status %d: %s", e.Status, e.Message)
}

// IsClientError reports a 4xx status.
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// errorBody accepts both envelopes the backend emits:
// {"message": "...", "mfaRequired": true} and {"error": {"code","message"}}.
type errorBody struct {
	Message     string          `json:"message"`
	MFARequired bool            `json:"mfaRequired"`
	Error       json.RawMessage `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads a non-2xx response into an *APIError. The body is
// consumed and closed.
func ParseResponseError(resp *http.Response) *APIError {
	defer func() { _ = resp.Body.Close() }()

	apiErr := &APIError{Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var body errorBody
	if json.Unmarshal(raw, &body) != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}

	apiErr.Message = body.Message
	apiErr.MFARequired = body.MFARequired
	if len(body.Error) > 0 {
		var env errorEnvelope
		if json.Unmarshal(body.Error, &env) == nil {
			apiErr.Code = env.Code
			if apiErr.Message == "" {
				apiErr.Message = env.Message
			}
		} else {
			var s string
			if json.Unmarshal(body.Error, &s) == nil && apiErr.Message == "" {
				apiErr.Message = s
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
