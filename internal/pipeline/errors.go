package pipeline

import "errors"

var (
	// ErrEmptyClaim rejects a run with nothing to verify
	ErrEmptyClaim = errors.New("claim is empty")

	// ErrSuperseded means a newer selection replaced the one being verified
	ErrSuperseded = errors.New("selection superseded by a newer one")
)

// ConfigError is a setup problem found before any network call
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}
