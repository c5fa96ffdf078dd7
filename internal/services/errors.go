package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying every failure the pipeline can surface.
var (
	// ErrTransient marks network, timeout, and rate-limit failures that are
	// safe to retry against an idempotent adapter.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks malformed input, unsupported content, and permanent
	// rejections. Retrying will not help.
	ErrPermanent = errors.New("permanent failure")
	// ErrCapacity marks scheduler admission rejections.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrNotFound marks lookups for unknown or evicted jobs.
	ErrNotFound = errors.New("not found")
	// ErrCancelled marks work abandoned after a cooperative cancellation request.
	ErrCancelled = errors.New("cancelled")
)

// Kind is the string form of an error classification used in logs and statuses.
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
	KindCapacity  Kind = "capacity_exceeded"
	KindNotFound  Kind = "not_found"
	KindCancelled Kind = "cancelled"
	KindUnknown   Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its taxonomy kind. Context cancellation and
// deadline expiry count as cancelled and transient respectively, so callers
// can pass adapter errors through without pre-filtering.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	case errors.Is(err, ErrCapacity):
		return KindCapacity
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the stage executor may retry after this error.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

// ErrorDetails carries the decomposed failure information used for logging.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details extracts structured information from a wrapped stage error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	return ErrorDetails{
		Kind:    Classify(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
