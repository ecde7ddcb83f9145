// Package commit provides the per-term records of the local two-phase
// commit protocol.
//
// A Record belongs to one participating term. It holds the approvals the
// term is still waiting on and the flags it must raise when it approves.
// Flags are the only shared mutable cells in the protocol: the waiting
// record and the approving record hold the same *Flag, so raising it on
// one side is observed on the other without any pointer between terms.
//
// Records are torn down explicitly when a commit finishes or is reverted
// (Release); nothing relies on garbage collection of cycles.
package commit

import "sort"

// State summarises a record.
type State int

const (
	// NotWaited: nobody waits on this term and it waits on nobody.
	NotWaited State = iota

	// BeingWaited: other participants wait on this term's approval.
	BeingWaited

	// Waiting: this term has unresolved dependencies.
	Waiting

	// Approved: this term approved and all of its obligations are met.
	Approved
)

func (s State) String() string {
	switch s {
	case BeingWaited:
		return "being_waited"
	case Waiting:
		return "waiting"
	case Approved:
		return "approved"
	default:
		return "not_waited"
	}
}

// Flag is a shared approval cell.
type Flag struct {
	set bool
}

// NewFlag returns an unset flag.
func NewFlag() *Flag {
	return &Flag{}
}

// Set raises the flag.
func (f *Flag) Set() {
	f.set = true
}

// IsSet reports whether the flag was raised.
func (f *Flag) IsSet() bool {
	return f.set
}

type dependency struct {
	approver string
	flag     *Flag
}

// Record is the two-phase commit state of one participating term.
type Record struct {
	waitingOn []dependency
	waiters   []*Flag
	approved  bool
}

// NewRecord returns a record in the NotWaited state.
func NewRecord() *Record {
	return &Record{}
}

// AddApprovalWaiter registers a flag this term must raise when it approves.
func (r *Record) AddApprovalWaiter(f *Flag) {
	r.waiters = append(r.waiters, f)
	r.approved = false
}

// WaitApprovalFrom registers a dependency: this term is blocked until f is
// raised by approver.
func (r *Record) WaitApprovalFrom(approver string, f *Flag) {
	r.waitingOn = append(r.waitingOn, dependency{approver: approver, flag: f})
}

// ApproveAll raises every flag this term is obligated to set and clears
// the obligation list.
func (r *Record) ApproveAll() {
	for _, f := range r.waiters {
		f.Set()
	}
	r.waiters = nil
	r.approved = true
}

// IsWaiting reports whether any dependency flag is still unset.
func (r *Record) IsWaiting() bool {
	for _, d := range r.waitingOn {
		if !d.flag.IsSet() {
			return true
		}
	}
	return false
}

// IsBeingWaited reports whether unresolved obligations remain.
func (r *Record) IsBeingWaited() bool {
	for _, f := range r.waiters {
		if !f.IsSet() {
			return true
		}
	}
	return false
}

// WaitingOn returns the approvers whose flags are still unset, sorted and
// de-duplicated.
func (r *Record) WaitingOn() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.waitingOn {
		if d.flag.IsSet() || seen[d.approver] {
			continue
		}
		seen[d.approver] = true
		out = append(out, d.approver)
	}
	sort.Strings(out)
	return out
}

// RenameApprover points dependencies on oldName at newName. Used when an
// approver is renamed while the commit is open.
func (r *Record) RenameApprover(oldName, newName string) {
	for i := range r.waitingOn {
		if r.waitingOn[i].approver == oldName {
			r.waitingOn[i].approver = newName
		}
	}
}

// State derives the protocol state. Waiting dominates BeingWaited.
func (r *Record) State() State {
	switch {
	case r.IsWaiting():
		return Waiting
	case r.IsBeingWaited():
		return BeingWaited
	case r.approved:
		return Approved
	default:
		return NotWaited
	}
}

// Release drops every dependency and obligation. The record must not be
// used afterwards.
func (r *Record) Release() {
	r.waitingOn = nil
	r.waiters = nil
}
