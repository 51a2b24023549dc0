// Package poolerr defines the error taxonomy shared by the pool manager,
// the statement invocation layer and the transaction coordinator (spec §7).
// Kinds are sentinel errors compatible with errors.Is/errors.As; callers
// that need the Kind of a wrapped error should use Kind(err).
package poolerr

import "errors"

// Sentinel errors, one per spec §7 kind. ValidationFailed is intentionally
// unexported from the public API in spirit (never surfaced directly to a
// caller of Acquire) but is still defined here so internal packages share
// one vocabulary.
var (
	// ErrConnectFailed: driver refused connection after retries. Fatal for
	// the triggering acquire; the pool itself remains usable.
	ErrConnectFailed = errors.New("poolerr: connect failed after retries")

	// ErrExhausted: pool at max size and fail-fast is configured.
	ErrExhausted = errors.New("poolerr: pool exhausted")

	// ErrTimeout: a bounded wait expired without acquiring a connection.
	ErrTimeout = errors.New("poolerr: acquire timed out")

	// ErrInterrupted: a blocking wait was cancelled (context done).
	ErrInterrupted = errors.New("poolerr: acquire interrupted")

	// ErrProxyClosed: operation attempted on a released/destroyed proxy.
	ErrProxyClosed = errors.New("poolerr: proxy closed")

	// ErrPoolClosed: operation attempted after Shutdown.
	ErrPoolClosed = errors.New("poolerr: pool closed")

	// ErrTransactionError: enlistment/delistment failure or illegal
	// coordinator state transition.
	ErrTransactionError = errors.New("poolerr: transaction error")

	// errValidationFailed: internal signal from a liveness probe; never
	// returned from a public Acquire/Release call. It triggers a
	// destroy-and-replace, it is not meant to be inspected by callers.
	errValidationFailed = errors.New("poolerr: validation failed")
)

// Kind classifies an error against the spec §7 taxonomy. It returns nil if
// err does not match any known kind.
func Kind(err error) error {
	for _, k := range []error{
		ErrConnectFailed, ErrExhausted, ErrTimeout, ErrInterrupted,
		ErrProxyClosed, ErrPoolClosed, ErrTransactionError, errValidationFailed,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsValidationFailed reports whether err represents a failed liveness
// probe. Exposed as a predicate rather than a sentinel so call sites can't
// accidentally propagate it as a public error kind.
func IsValidationFailed(err error) bool {
	return errors.Is(err, errValidationFailed)
}

// NewValidationFailed wraps cause as a ValidationFailed error.
func NewValidationFailed(cause error) error {
	if cause == nil {
		return errValidationFailed
	}
	return &wrapped{msg: "validation failed", kind: errValidationFailed, cause: cause}
}

type wrapped struct {
	msg   string
	kind  error
	cause error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.msg
	}
	return w.msg + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() error { return w.kind }

// Wrap attaches a human-readable message and cause to a sentinel kind,
// preserving errors.Is(result, kind). The cause appears only in the
// Error() text: w.Unwrap() returns kind, and kind itself carries no cause,
// so errors.Is/errors.As cannot reach the cause — callers needing the
// low-level driver error should keep it from the call site rather than
// round-trip it here.
func Wrap(kind error, msg string, cause error) error {
	return &wrapped{msg: msg, kind: kind, cause: cause}
}
