// Package harness runs knowledge-base scenarios end to end.
//
// A scenario seeds a fresh in-memory SQLite store from Datalog text,
// drives the engine through a list of steps, and asserts on the step
// trace and the final knowledge base.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: append_needs_approval
//	description: "Appending an argument waits for the referrer"
//	commit_id: commit-1
//	seed: |
//	  Decl original(X).
//	  Decl referring(X).
//	  referring(X) :- original(X).
//	steps:
//	  - op: add_arg
//	    term: original
//	    arg: Y
//	    expect:
//	      outcome: staged
//	      waiting_on: [referring]
//	  - op: approve
//	    term: referring
//	  - op: finish
//	assertions:
//	  - type: final_state
//	    term: referring
//	    expect: { mentions: [original] }
//	  - type: consistent
//
// # Step Operations
//
//   - create: add the term defined by text (a Decl plus its clauses)
//   - rename: rename term to "to"
//   - describe: replace the description of term with text
//   - add_arg, remove_arg, reorder_args: reshape the arguments of term
//   - add_rule: add the rule in text to the term it defines
//   - delete: delete term
//   - approve: approve term in the open commit
//   - finish, revert: end the open commit
//
// # Assertion Types
//
//   - trace_contains: a step with the given op (and term) appears in the trace
//   - trace_order: the given steps appear in order
//   - trace_count: a step appears exactly N times
//   - final_state: a stored term matches the expected fields
//   - consistent: every back-reference matches a call
//
// # Deterministic Testing
//
// Steps are numbered by testutil.DeterministicClock and every batch and
// commit uses the scenario's commit_id, so the trace and the exported
// knowledge base can be compared with golden files.
package harness
