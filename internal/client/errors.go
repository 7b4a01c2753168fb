package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"amo-signer/internal/logging"
)

// ErrURLNotSpecified is returned before any network call when a request has no URL
var ErrURLNotSpecified = errors.New("URL was not specified")

// ValidationError wraps a request that was rejected before it was sent
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BadResponseError is returned for HTTP statuses outside 200-299
type BadResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	// Body is the parsed JSON body, or the raw text when it was not JSON
	Body any
}

func (e *BadResponseError) Error() string {
	headers, err := json.Marshal(logging.Redact(e.Header))
	if err != nil {
		headers = []byte("{}")
	}
	return fmt.Sprintf(
		"Received bad response from the server while requesting %s %s\n\nstatus: %d\nresponse: %s\nheaders: %s",
		e.Method, e.URL, e.StatusCode, FormatResponse(e.Body, 0), string(headers),
	)
}

// IsBadResponse reports whether err is a BadResponseError with the given status.
// A status of 0 matches any bad response.
func IsBadResponse(err error, status int) bool {
	var bad *BadResponseError
	if !errors.As(err, &bad) {
		return false
	}
	return status == 0 || bad.StatusCode == status
}

// DefaultMaxResponseLength caps response bodies rendered into error messages
const DefaultMaxResponseLength = 500

// FormatResponse renders a response body for humans, truncated to maxLength
// characters followed by "...". Non-string values are rendered as JSON, or
// with %v when they cannot be marshalled. maxLength <= 0 uses the default.
func FormatResponse(value any, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxResponseLength
	}

	var text string
	switch v := value.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(data)
		}
	}

	runes := []rune(text)
	if len(runes) > maxLength {
		return string(runes[:maxLength]) + "..."
	}
	return text
}
