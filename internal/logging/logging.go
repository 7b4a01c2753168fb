package logging

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Log logs to both console (GitHub Actions format) and New Relic
// Extracts the New Relic transaction from context if available
func Log(ctx context.Context, level, message string) {
	// Always log to console for GitHub Actions
	if traceID := getTraceID(ctx); traceID != "" {
		fmt.Printf("::%s::[trace=%s] %s\n", level, traceID, message)
	} else {
		fmt.Printf("::%s::%s\n", level, message)
	}

	// Also send to New Relic if transaction exists in context
	if txn := newrelic.FromContext(ctx); txn != nil {
		txn.RecordLog(newrelic.LogData{
			Message:  message,
			Severity: level,
		})
	}
}

// Logf is like Log but supports formatting
func Logf(ctx context.Context, level, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	Log(ctx, level, message)
}

// Group opens a collapsible log group; the returned func closes it
func Group(ctx context.Context, title string) func() {
	Log(ctx, "group", title)
	return func() { Log(ctx, "endgroup", "") }
}

// Convenience functions for common log levels
func Notice(ctx context.Context, message string) {
	Log(ctx, "notice", message)
}

func Noticef(ctx context.Context, format string, args ...interface{}) {
	Logf(ctx, "notice", format, args...)
}

func Debug(ctx context.Context, message string) {
	Log(ctx, "debug", message)
}

func Debugf(ctx context.Context, format string, args ...interface{}) {
	Logf(ctx, "debug", format, args...)
}

func Error(ctx context.Context, message string) {
	Log(ctx, "error", message)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	Logf(ctx, "error", format, args...)
}

func Warn(ctx context.Context, message string) {
	Log(ctx, "warn", message)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	Logf(ctx, "warn", format, args...)
}

// NoticeError reports err on the New Relic transaction in ctx, if any
func NoticeError(ctx context.Context, err error, attrs map[string]interface{}) {
	if err == nil {
		return
	}
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return
	}
	txn.NoticeError(newrelic.Error{
		Message:    err.Error(),
		Class:      fmt.Sprintf("%T", err),
		Attributes: attrs,
	})
}

// NoticeErrorWithCategory is NoticeError with an error.category attribute added
func NoticeErrorWithCategory(ctx context.Context, err error, category string, attrs map[string]interface{}) {
	merged := make(map[string]interface{}, len(attrs)+1)
	for k, v := range attrs {
		merged[k] = v
	}
	merged["error.category"] = category
	NoticeError(ctx, err, merged)
}

// getTraceID returns the distributed trace ID of the transaction in ctx
func getTraceID(ctx context.Context) string {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return ""
	}
	return txn.GetTraceMetadata().TraceID
}
