package acquire

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies why an acquisition failed
type ErrorKind string

const (
	KindInvalidURL ErrorKind = "invalid_url"
	KindDisallowed ErrorKind = "robots_disallowed"
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindStatus     ErrorKind = "http_status"
	KindEmpty      ErrorKind = "empty_content"
	KindNonText    ErrorKind = "non_text"
)

// Error is returned for every failed acquisition
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // Set for KindStatus
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	case KindEmpty:
		return fmt.Sprintf("fetch %s: no readable text", e.URL)
	case KindNonText:
		return fmt.Sprintf("fetch %s: not a text document", e.URL)
	case KindDisallowed:
		return fmt.Sprintf("fetch %s: disallowed by robots.txt", e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// transportError classifies a client.Do failure
func transportError(rawURL string, err error) *Error {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: rawURL, Err: err}
}
