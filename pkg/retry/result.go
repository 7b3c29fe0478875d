package retry

import "github.com/webharvest/webharvest/pkg/failure"

// Result is the outcome of a Retry call: the produced value (zero on
// failure), the terminal classified error (nil on success), and how
// many attempts were made before returning.
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
}

// NewSuccessResult wraps a successful attempt's value and attempt count.
func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

// Value returns the produced value, or the zero value of T on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the terminal classified error, or nil on success.
func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

// Attempts reports how many attempts Retry made before returning.
func (r Result[T]) Attempts() int {
	return r.attempts
}
