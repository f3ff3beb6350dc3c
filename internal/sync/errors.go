package sync

import (
	"errors"
	"fmt"
)

var (
	ErrTransientFetch = errors.New("sync: remote fetch failed")
	ErrDestination    = errors.New("sync: destination operation failed")
	ErrEmptyListing   = errors.New("sync: remote listing is empty")
)

// FetchError is a failure to read from the remote source
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrTransientFetch
}

// DestinationError is a failed operation against the destination store
type DestinationError struct {
	Op  string
	Key string
	Err error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}

func (e *DestinationError) Is(target error) bool {
	return target == ErrDestination
}
