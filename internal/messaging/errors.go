package messaging

import (
	"errors"

	"github.com/ppiankov/sourcecheck/internal/acquire"
	"github.com/ppiankov/sourcecheck/internal/llm"
	"github.com/ppiankov/sourcecheck/internal/verify"
)

// ErrorFor converts a handler error to its wire form
func ErrorFor(err error) ErrorReply {
	if err == nil {
		return ErrorReply{}
	}

	var acqErr *acquire.Error
	var verErr *verify.Error

	code := "internal"
	switch {
	case errors.Is(err, ErrTimeout):
		code = "timeout"
	case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrUnexpectedMessage):
		code = "bad_request"
	case errors.Is(err, ErrUnavailable), errors.Is(err, llm.ErrNotConfigured):
		code = "unavailable"
	case errors.As(err, &acqErr):
		code = "fetch_" + string(acqErr.Kind)
	case errors.As(err, &verErr):
		code = "verify_" + string(verErr.Kind)
	}
	return ErrorReply{Message: err.Error(), Code: code}
}
