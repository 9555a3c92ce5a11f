package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConfig         = errors.New("invalid configuration")
	ErrExtraction     = errors.New("text extraction failed")
	ErrAuth           = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTemporary      = errors.New("temporary failure")
	ErrAnalysisFailed = errors.New("analysis failed after retries")
	ErrIO             = errors.New("i/o failure")
	ErrInvalidInput   = errors.New("invalid input")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsFatal reports whether an analysis or write error must stop the run:
// every later pair would fail the same way.
func IsFatal(err error) bool {
	return IsKind(err, ErrAuth) || IsKind(err, ErrIO)
}

// KindName maps an error to its taxonomy label. Order matters: an exhausted
// retry wraps the last temporary error and a failed extraction may wrap the
// storage error that caused it.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrAnalysisFailed):
		return "AnalysisFailure"
	case IsKind(err, ErrConfig):
		return "ConfigError"
	case IsKind(err, ErrExtraction):
		return "ExtractionError"
	case IsKind(err, ErrNotFound):
		return "NotFoundError"
	case IsKind(err, ErrAuth):
		return "AuthError"
	case IsKind(err, ErrInvalidRequest), IsKind(err, ErrInvalidInput):
		return "RequestError"
	case IsKind(err, ErrTemporary):
		return "TransientError"
	case IsKind(err, ErrIO):
		return "IOError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	default:
		return "UnknownError"
	}
}
