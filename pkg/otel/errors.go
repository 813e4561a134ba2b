package otel

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error type constants for structured error recording
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeHTTP       = "http"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
	ErrorTypeCache      = "cache"
)

// RecordError records an error on a span with structured attributes and sets the span status to Error.
func RecordError(span trace.Span, err error, errorType string, transient bool) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.Bool("error.transient", transient),
	))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOk sets the span status to Ok, indicating successful completion.
func SetSpanOk(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// ClassifyTransport maps an error from an outbound call to an error type and
// whether retrying on the next cycle is likely to help.
func ClassifyTransport(err error) (errorType string, transient bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout, true
		}
		return ErrorTypeNetwork, true
	}
	return ErrorTypeNetwork, true
}

// IsTransientStatus reports whether an HTTP status is worth retrying later.
func IsTransientStatus(code int) bool {
	return code == 429 || code >= 500
}
