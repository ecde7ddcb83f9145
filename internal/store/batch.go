package store

import (
	"errors"

	"github.com/roach88/termbase/internal/term"
)

// ErrNotFound is returned (wrapped) when a term does not exist.
var ErrNotFound = errors.New("term not found")

// Journal operations.
const (
	OpPut    = "put"
	OpDelete = "delete"
)

// Batch is a set of writes applied atomically: either every put and
// delete lands, or none does.
type Batch struct {
	// ID correlates the journal rows of one batch (a commit id or an
	// automatic-apply id).
	ID string

	Puts    []*term.Term
	Deletes []string
}

// Empty reports whether the batch writes nothing.
func (b Batch) Empty() bool {
	return len(b.Puts) == 0 && len(b.Deletes) == 0
}

// JournalEntry is one row of the append-only journal.
type JournalEntry struct {
	Seq         int64  `json:"seq"`
	BatchID     string `json:"batch_id"`
	Op          string `json:"op"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
}
