// Package engine coordinates edits to the knowledge base.
//
// The engine is the only writer of the persistent store. Every edit goes
// through it:
//
//  1. The decision policy classifies the change or deletion.
//  2. Automatic edits are propagated against a fresh working set and
//     flushed to the store as one batch.
//  3. Edits that need confirmation open a two-phase commit. The change is
//     propagated into the commit's working set, the edited term and every
//     structural dependent become participants, and nothing reaches the
//     store until every participant has approved and FinishCommit runs.
//
// ONE COMMIT AT A TIME:
// At most one commit is open. Further edits to its participants compound
// into it. An edit that would touch any term staged in the open commit,
// or that needs confirmation itself, is rejected with NOT_READY and
// nothing is staged.
//
// REVERT:
// RevertCommit discards the commit's working set. The store was never
// written, so there is nothing to undo.
//
// Concurrency: operations are serialised by a mutex and run to
// completion inside the call. "Waiting" is a logical state; there is no
// background work.
package engine
