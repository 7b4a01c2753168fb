package logging

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// RedactedValue replaces the value of every sensitive header in debug output.
const RedactedValue = "<REDACTED>"

var redactedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

func isRedactedHeader(name string) bool {
	return redactedHeaders[strings.ToLower(name)]
}

// Redact returns a copy of value with Authorization, Cookie and Set-Cookie
// values replaced by RedactedValue. Maps and slices are copied on the way
// down so the caller's value is never modified. Unknown types are returned as is.
func Redact(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case http.Header:
		out := make(http.Header, len(v))
		for k, vals := range v {
			if isRedactedHeader(k) {
				out[k] = []string{RedactedValue}
				continue
			}
			out[k] = append([]string(nil), vals...)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if isRedactedHeader(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = val
		}
		return out
	case map[string][]string:
		return map[string][]string(Redact(http.Header(v)).(http.Header))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if isRedactedHeader(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Redact(val)
		}
		return out
	default:
		return value
	}
}

// DebugLogger receives request/response traces. Values are redacted before
// they reach the logger.
type DebugLogger interface {
	Debug(ctx context.Context, label string, value any)
}

// ActionsDebugLogger writes debug values as indented JSON workflow commands
type ActionsDebugLogger struct{}

func (ActionsDebugLogger) Debug(ctx context.Context, label string, value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		Debugf(ctx, "%s: %v", label, value)
		return
	}
	Debugf(ctx, "%s: %s", label, string(data))
}

// Debugger gates a DebugLogger behind an enabled flag and redacts every value
type Debugger struct {
	Enabled bool
	Logger  DebugLogger
}

// Debug forwards label and a redacted copy of value when enabled
func (d Debugger) Debug(ctx context.Context, label string, value any) {
	if !d.Enabled {
		return
	}
	logger := d.Logger
	if logger == nil {
		logger = ActionsDebugLogger{}
	}
	logger.Debug(ctx, label, Redact(value))
}
