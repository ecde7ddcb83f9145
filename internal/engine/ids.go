package engine

import "github.com/google/uuid"

// UUIDv7Generator issues batch and commit ids. UUIDv7 leads with a
// timestamp, so journal rows grouped by batch id sort by creation time.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7. It panics only if the system
// random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
