package state

import "errors"

var (
	ErrStateCorrupt    = errors.New("state: snapshot is corrupt")
	ErrInvalidSourceID = errors.New("state: invalid source id")
)
