package scanning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies extraction failures. The kind decides the retry and
// abort policy at the importer.
type ErrorKind int

const (
	// Transient covers network failures, timeouts, and 5xx-equivalent
	// service errors. Retried with backoff before surfacing.
	Transient ErrorKind = iota
	// InvalidFormat means the service answered but the answer was not
	// parseable structured data. Never retried.
	InvalidFormat
	// QuotaExceeded means further calls in this run are certain to fail
	// the same way. The batch aborts remaining work.
	QuotaExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidFormat:
		return "invalid_format"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return "transient"
	}
}

// ExtractionError wraps a provider failure with its classification.
type ExtractionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func transientErr(err error) error     { return &ExtractionError{Kind: Transient, Err: err} }
func invalidFormatErr(err error) error { return &ExtractionError{Kind: InvalidFormat, Err: err} }
func quotaErr(err error) error         { return &ExtractionError{Kind: QuotaExceeded, Err: err} }

// IsQuotaExceeded reports whether err is a quota-exhaustion extraction error.
func IsQuotaExceeded(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == QuotaExceeded
}

// IsTransient reports whether err is a retryable extraction error.
func IsTransient(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == Transient
}

// classifyServiceError maps a raw provider error onto the taxonomy.
// Unknown errors default to transient so that a one-off hiccup never
// permanently skips a receipt.
func classifyServiceError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests {
			return quotaErr(err)
		}
		return transientErr(err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		if st.Code() == codes.ResourceExhausted {
			return quotaErr(err)
		}
		return transientErr(err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return transientErr(err)
	}
	return transientErr(err)
}

const (
	maxAttempts      = 3
	baseRetryDelay   = time.Second
	perAttemptBudget = 60 * time.Second
)

// withRetry runs fn up to maxAttempts times, sleeping with doubling delay
// between attempts. Only transient errors are retried; anything else, and
// context cancellation, surface immediately.
func withRetry(ctx context.Context, fn func(context.Context) (RawDocument, error)) (RawDocument, error) {
	var lastErr error
	delay := baseRetryDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttemptBudget)
		doc, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, transientErr(ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
