package client

import "fmt"

// OfflineError means no connectivity and no usable cached fallback. It is
// distinguishable from a plain HTTP failure so callers can render an offline
// state instead of a generic error.
type OfflineError struct {
	Resource string
}

func (e *OfflineError) Error() string {
	if e.Resource == "" {
		return "no cached data available offline"
	}
	return fmt.Sprintf("no cached data available offline for %s", e.Resource)
}

// NetworkError means the request was dispatched but no response arrived
// (DNS failure, timeout, connection reset).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError means the server responded with a non-2xx status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// ValidationError flags a malformed payload detected before dispatch.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
