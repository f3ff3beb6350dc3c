package state

import (
	"fmt"
	"path"
	"regexp"
)

const (
	Namespace   = "_sync_state"
	stateObject = "latest_state.json"
	logObject   = "sync_log.jsonl"
)

var regexSourceID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateSourceID checks that id is safe to embed in destination keys
func ValidateSourceID(id string) error {
	if !regexSourceID.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSourceID, id)
	}
	return nil
}

// Prefix is the key prefix holding every state object of a source
func Prefix(sourceID string) string {
	return path.Join(Namespace, sourceID) + "/"
}

func StateKey(sourceID string) string {
	return path.Join(Namespace, sourceID, stateObject)
}

func LogKey(sourceID string) string {
	return path.Join(Namespace, sourceID, logObject)
}
