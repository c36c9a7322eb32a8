package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed fetch.
type Kind int

// Failure kinds.
const (
	// KindTransientExhausted means every attempt failed with a retryable error.
	KindTransientExhausted Kind = iota + 1
	// KindPermanent means the failure will not go away by retrying.
	KindPermanent
	// KindPolicyDenied means robots.txt forbids the URL.
	KindPolicyDenied
	// KindCanceled means the caller's context ended.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransientExhausted:
		return "transient_exhausted"
	case KindPermanent:
		return "permanent"
	case KindPolicyDenied:
		return "policy_denied"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is returned by Fetcher.Fetch for every failure.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of a fetch error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsCanceled reports whether err is a fetch error caused by cancellation.
func IsCanceled(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindCanceled
}

// ErrPolicyDenied is wrapped by policy-denied errors.
var ErrPolicyDenied = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent tags err so the fetcher never retries it.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
