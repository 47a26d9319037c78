package verify

import (
	"errors"
	"fmt"

	"github.com/ppiankov/sourcecheck/internal/llm"
)

// ErrorKind classifies a verification failure
type ErrorKind string

const (
	KindProvider ErrorKind = "provider"        // Transport or API failure
	KindEmpty    ErrorKind = "empty_response"  // The model returned nothing
	KindSchema   ErrorKind = "schema_mismatch" // The response did not match the verdict schema
)

// Error is a verification failure. It is surfaced to the caller as is; there is no
// fallback verdict.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("verification failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func decodeError(err error) *Error {
	if errors.Is(err, llm.ErrEmptyResponse) {
		return &Error{Kind: KindEmpty, Err: err}
	}
	return &Error{Kind: KindSchema, Err: err}
}
