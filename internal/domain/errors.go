package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "fetch", "read")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// InvariantError reports a malformed account update, e.g. a balance where
// total != free + used. It aborts the current recompute only; prior state
// stays visible. Never retriable: the input itself is wrong.
type InvariantError struct {
	Currency string
	Reason   string
}

func (e *InvariantError) Error() string {
	return "invariant violation [" + e.Currency + "]: " + e.Reason
}

func (e *InvariantError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when a websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrFeedUnavailable is returned when a websocket capability is unsupported
	// or fails to construct. The remaining capabilities proceed without it.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrNotAvailable is returned when requested market data has no cache yet.
	// Distinct from "value is empty": the cache was never populated.
	ErrNotAvailable = errors.New("data not available")
)
