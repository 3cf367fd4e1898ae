package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrServiceUnavailable wraps transport failures talking to the auth service.
	ErrServiceUnavailable = errors.New("auth service unavailable")

	// ErrSessionResolution is returned when the current session could not be
	// determined, as opposed to there being no session.
	ErrSessionResolution = errors.New("session resolution failed")

	// ErrStorage wraps failures reading or writing persisted sessions.
	ErrStorage = errors.New("session storage failed")
)

// ServiceError is a rejection returned by the auth service.
// Error returns the service message unchanged so it can be shown to users.
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IsClientError returns true for 4xx responses other than 429, which are
// final and will not succeed on retry.
func (e *ServiceError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseServiceError builds a ServiceError from a non-2xx response.
func parseServiceError(resp *http.Response) *ServiceError {
	se := &ServiceError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		se.Code = firstNonEmpty(body.ErrorCode, body.Error)
		if se.Code == "" {
			if s, ok := body.Code.(string); ok {
				se.Code = s
			}
		}
		se.Message = firstNonEmpty(body.Msg, body.ErrorDescription, body.Message, body.Error)
	}

	if se.Message == "" {
		if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
			se.Message = text
		} else {
			se.Message = fmt.Sprintf("auth service returned HTTP %d", resp.StatusCode)
		}
	}

	return se
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
