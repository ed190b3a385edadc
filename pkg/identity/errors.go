package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is the single error shape the login orchestration discriminates
// on. It carries the response status, headers and the parsed body message so
// challenge classification never has to re-read a response stream.
type APIError struct {
	Status           int
	Headers          http.Header
	Message          string
	ErrorName        string
	ErrorDescription string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity provider returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("identity provider returned %d", e.Status)
}

// errorBody is the wire shape of identity provider error responses.
type errorBody struct {
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// NewAPIError builds an APIError from a non-2xx response, consuming its body.
func NewAPIError(res *http.Response) *APIError {
	apiErr := &APIError{
		Status:  res.StatusCode,
		Headers: res.Header,
	}
	if res.Body != nil {
		defer res.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err == nil {
			var body errorBody
			if json.Unmarshal(raw, &body) == nil {
				apiErr.Message = body.Message
				apiErr.ErrorName = body.Error
				apiErr.ErrorDescription = body.ErrorDescription
			}
		}
	}
	return apiErr
}

// UserMessage returns the most specific human-readable message of the error.
func (e *APIError) UserMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.ErrorName != "":
		return e.ErrorName
	}
	return http.StatusText(e.Status)
}

// StatusOf extracts the HTTP status from an error chain, or 0 when the error
// did not originate from an identity provider response.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// HeaderOf extracts a response header from an error chain.
func HeaderOf(err error, name string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Headers != nil {
		return apiErr.Headers.Get(name)
	}
	return ""
}

// MessageOf extracts the response body message from an error chain.
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
