package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCircuitOpen is returned without contacting the vendor while the
// breaker for that vendor is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StatusError is raised when a vendor answers with a status outside the
// accepted set.
type StatusError struct {
	Vendor     string
	StatusCode int
	Reason     string
	Details    []string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("error in API call to %s [%d] - [%s]", e.Vendor, e.StatusCode, e.Reason)
	if len(e.Details) > 0 {
		msg += fmt.Sprintf("\nerror details: [%s]", strings.Join(e.Details, "\n"))
	}
	return msg
}

// Classifier turns a rejected response into an error.
type Classifier func(vendor string, resp *Response) error

// DefaultClassifier understands the {"errors":[{"detail":"..."}]} envelope
// most vendors use. Anything else yields a StatusError with status and
// reason only.
func DefaultClassifier(vendor string, resp *Response) error {
	return &StatusError{
		Vendor:     vendor,
		StatusCode: resp.StatusCode,
		Reason:     reason(resp),
		Details:    errorDetails(resp.Body),
	}
}

type errorEnvelope struct {
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

func errorDetails(body []byte) []string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	var details []string
	for _, e := range env.Errors {
		if e.Detail != "" {
			details = append(details, e.Detail)
		}
	}
	return details
}

func reason(resp *Response) string {
	// resp.Status is "404 Not Found"; keep the phrase only
	if _, phrase, ok := strings.Cut(resp.Status, " "); ok && phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
