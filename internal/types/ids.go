package types

import (
	"time"

	"github.com/google/uuid"
)

// RunID identifies a single generation run in the manifest cache.
// String alias enables type safety while maintaining plain serialization.
type RunID string

// NewRunID generates a UUIDv7 generation-run identifier. Time-ordered IDs
// keep manifest rows naturally sorted by run time.
//
// Run IDs exist only in the manifest; they are never embedded in generated
// source, which must stay byte-identical for identical inputs.
func NewRunID() RunID {
	return RunID(uuid.Must(uuid.NewV7()).String())
}

// ParseRunID validates and converts a string to RunID.
func ParseRunID(s string) (RunID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RunID(s), nil
}

// RunIDTime extracts the timestamp embedded in a UUIDv7 run ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func RunIDTime(id RunID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
