package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCheckpointCorrupt marks checkpoint state that cannot be trusted for resume.
var ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

// ErrNotFound is returned by stores when a requested object does not exist.
var ErrNotFound = errors.New("not found")

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

// Fetch failure kinds. Only ClientError is permanent.
const (
	FetchTimeout      FetchErrorKind = "timeout"
	FetchServerError  FetchErrorKind = "server_error"
	FetchClientError  FetchErrorKind = "client_error"
	FetchNetworkError FetchErrorKind = "network_error"
)

// FetchError is the terminal outcome of a paced fetch.
type FetchError struct {
	Kind     FetchErrorKind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s: %s", e.URL, e.Kind)
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchKind reports whether err is a FetchError of the given kind.
func IsFetchKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// ParseError reports that a page lacked the structure a parser expected.
type ParseError struct {
	URL    string
	Page   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s page %s: %s", e.Page, e.URL, e.Reason)
}

// ValidationFailure reports a record rejected by the schema gate.
type ValidationFailure struct {
	Key           ModelKey
	MissingFields []string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("record %s failed validation: missing %s", e.Key, strings.Join(e.MissingFields, ", "))
}
