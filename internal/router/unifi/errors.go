package unifi

import "fmt"

// TransportError wraps connection, TLS and timeout failures from the HTTP
// layer. Never retried; the caller decides what to do.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError indicates a response body that did not match the expected
// JSON shape.
type DecodeError struct {
	Op  string
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding response from %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AuthError covers credential lookup failures and login rejections. It is
// surfaced after the single automatic login attempt; nothing retries it.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StatusError is any non-success, non-401 response, or a failure on the
// single retried request after re-login.
type StatusError struct {
	Op     string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned unexpected status %d", e.Op, e.URL, e.Status)
}

// InvariantError marks a programming defect, e.g. a request this client
// built that cannot be cloned. Not recoverable by retrying.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: internal invariant violated: %s", e.Op, e.Msg)
}
