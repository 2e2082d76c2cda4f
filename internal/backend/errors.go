package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportError is any failed exchange with the backend. StatusCode is zero
// when no response arrived.
type TransportError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the backend answered and refused the request.
func (e *TransportError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// isRejection keeps answered 4xx out of the breaker failure count.
func isRejection(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Rejected()
}

const maxDetail = 4 << 10

// extractDetail returns the human readable reason from an error body: the
// "error" or "message" field of a JSON object, or the raw text.
func extractDetail(status int, body []byte) string {
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Error != "" {
			return obj.Error
		}
		if obj.Message != "" {
			return obj.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "{") {
		return http.StatusText(status)
	}
	return text
}
