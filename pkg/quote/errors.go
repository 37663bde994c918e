package quote

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches any *NetworkFailure.
	ErrNetwork = errors.New("quote: upstream request failed")
	// ErrParse matches any *ParseFailure.
	ErrParse = errors.New("quote: page could not be parsed")
	// ErrIncompleteData matches any *IncompleteData.
	ErrIncompleteData = errors.New("quote: incomplete price row")
)

// NetworkFailure is a timeout, transport error or non-2xx response.
type NetworkFailure struct {
	Code       string
	StatusCode int
	Err        error
}

func (e *NetworkFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Code, e.Err)
}

func (e *NetworkFailure) Unwrap() error { return e.Err }

func (e *NetworkFailure) Is(target error) bool { return target == ErrNetwork }

// ParseFailure means the page yielded no usable document or heading.
type ParseFailure struct {
	Code   string
	Reason string
	Err    error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Code, e.Reason)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

func (e *ParseFailure) Is(target error) bool { return target == ErrParse }

// IncompleteData is returned by Format when the first row is short.
type IncompleteData struct {
	Code  string
	Cells int
}

func (e *IncompleteData) Error() string {
	return fmt.Sprintf("format %s: need %d cells, got %d", e.Code, rowCells, e.Cells)
}

func (e *IncompleteData) Is(target error) bool { return target == ErrIncompleteData }

// failureKind is the metric and log label for a lookup error.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrIncompleteData):
		return "incomplete"
	default:
		return "unknown"
	}
}
