package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/termbase/internal/change"
	"github.com/roach88/termbase/internal/commit"
	"github.com/roach88/termbase/internal/impact"
	"github.com/roach88/termbase/internal/policy"
	"github.com/roach88/termbase/internal/propagate"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
	"github.com/roach88/termbase/internal/workset"
)

// openCommit is the state of the single open two-phase commit.
type openCommit struct {
	id      string
	cache   *workset.Cache
	renames map[string]string // store name -> current name
}

func newOpenCommit(id string, cache *workset.Cache) *openCommit {
	return &openCommit{id: id, cache: cache, renames: make(map[string]string)}
}

// noteRename records a rename so views can follow it at finish.
func (oc *openCommit) noteRename(c change.Change) {
	if !c.Renamed() {
		return
	}
	for from, to := range oc.renames {
		if to == c.Original.Name {
			oc.renames[from] = c.Updated.Name
			return
		}
	}
	oc.renames[c.Original.Name] = c.Updated.Name
}

// ready reports whether no participant is waiting.
func (oc *openCommit) ready() bool {
	for _, n := range oc.cache.Participants() {
		if rec, ok := oc.cache.Record(n); ok && rec.IsWaiting() {
			return false
		}
	}
	return true
}

// waitingOn returns every approver some participant still waits on.
func (oc *openCommit) waitingOn() []string {
	var names []string
	for _, n := range oc.cache.Participants() {
		if rec, ok := oc.cache.Record(n); ok {
			names = append(names, rec.WaitingOn()...)
		}
	}
	return impact.Dedup(names)
}

// requireApprovals makes name wait on the approval of each approver,
// promoting approvers into the commit as needed.
func (oc *openCommit) requireApprovals(ctx context.Context, name string, rec *commit.Record, approvers []string) error {
	for _, a := range approvers {
		if a == name {
			continue
		}
		if _, err := oc.cache.Get(ctx, a); err != nil {
			return passError(a, err)
		}
		aRec, err := oc.cache.Promote(a)
		if err != nil {
			return passError(a, err)
		}
		f := commit.NewFlag()
		rec.WaitApprovalFrom(a, f)
		aRec.AddApprovalWaiter(f)
	}
	return nil
}

// checkDisjoint rejects an edit outside the open commit that would touch
// any term the commit has staged.
func (e *Engine) checkDisjoint(names ...string) error {
	if e.open == nil {
		return nil
	}
	for _, n := range names {
		if e.open.cache.Contains(n) {
			return newError(ErrCodeNotReady, n, "term takes part in open commit %s", e.open.id)
		}
	}
	return nil
}

// closeCommit drops the open commit and releases its records.
func (e *Engine) closeCommit(outcome string) {
	e.open.cache.Discard()
	e.open = nil
	RecordCommit(outcome)
}

// abortOnStorage closes the open commit if err is a storage failure,
// since the working set may hold a partial pass.
func (e *Engine) abortOnStorage(err error, log *slog.Logger) {
	if e.open != nil && IsStorage(err) {
		log.Error("commit aborted", "commit", e.open.id, "error", err)
		e.closeCommit("failed")
	}
}

// PropagateChange applies c.
//
// An automatic change is propagated and written immediately. A change
// that needs confirmation opens a commit and is staged; the store is
// untouched until FinishCommit. A change to a participant of the open
// commit compounds into it.
//
// c.Original must equal the engine's current snapshot of the term (see
// Lookup), otherwise the change fails with CONFLICT.
func (e *Engine) PropagateChange(ctx context.Context, c change.Change) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := c.Validate(); err != nil {
		return Outcome{}, wrapError(ErrCodeInvalidChange, "", err, "invalid change")
	}
	name := c.Name()
	current, err := e.current(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	if !term.Equal(current, c.Original) {
		return Outcome{}, newError(ErrCodeConflict, name, "change was built against a stale snapshot")
	}

	pass := e.clock.Next()
	decision := policy.ClassifyChange(c)
	log := e.logger.With("pass", pass, "term", name)
	log.Debug("propagating change", "change", c.String(), "decision", decision.String())

	if e.open != nil {
		if rec, ok := e.open.cache.Record(name); ok {
			out, err := e.compoundChange(ctx, c, rec, pass, log)
			RecordChange(modeCompounded, err)
			return out, err
		}
		names := append(impact.OfChange(c), name, c.Updated.Name)
		if err := e.checkDisjoint(names...); err != nil {
			RecordChange(modeAutomatic, err)
			return Outcome{}, err
		}
		if decision == policy.RequiresConfirmation {
			err := newError(ErrCodeNotReady, name, "commit %s is already open", e.open.id)
			RecordChange(modeStaged, err)
			return Outcome{}, err
		}
	}

	if decision == policy.Automatic {
		out, err := e.applyChange(ctx, c, pass, log)
		RecordChange(modeAutomatic, err)
		return out, err
	}
	out, err := e.stageChange(ctx, c, pass, log)
	RecordChange(modeStaged, err)
	return out, err
}

func (e *Engine) applyChange(ctx context.Context, c change.Change, pass int64, log *slog.Logger) (Outcome, error) {
	cache := workset.New(e.store)
	defer cache.Discard()

	res, err := propagate.Change(ctx, c, cache)
	if err != nil {
		return Outcome{}, passError(c.Name(), err)
	}
	renames := map[string]string{c.Original.Name: c.Updated.Name}
	if _, err := e.flush(ctx, cache, e.ids.Generate(), renames); err != nil {
		return Outcome{}, err
	}

	updated := res.Names()
	RecordAffected(len(updated))
	log.Info("change applied", "change", c.String(), "updated", updated)
	return Outcome{Pass: pass, Decision: policy.Automatic, Applied: true, Updated: updated}, nil
}

func (e *Engine) stageChange(ctx context.Context, c change.Change, pass int64, log *slog.Logger) (Outcome, error) {
	cache := workset.New(e.store)
	res, err := propagate.Change(ctx, c, cache)
	if err != nil {
		cache.Discard()
		return Outcome{}, passError(c.Name(), err)
	}

	oc := newOpenCommit(e.ids.Generate(), cache)
	oc.noteRename(c)
	name := c.Updated.Name
	rec, err := cache.Promote(name)
	if err == nil {
		err = oc.requireApprovals(ctx, name, rec, policy.Dependents(c))
	}
	if err != nil {
		cache.Discard()
		return Outcome{}, passError(name, err)
	}
	e.open = oc

	updated := res.Names()
	waiting := oc.waitingOn()
	RecordAffected(len(updated))
	log.Info("commit opened", "commit", oc.id, "change", c.String(), "waiting_on", waiting)
	return Outcome{
		Pass:      pass,
		Decision:  policy.RequiresConfirmation,
		CommitID:  oc.id,
		Updated:   updated,
		WaitingOn: waiting,
	}, nil
}

// compoundChange stages c into the open commit. Terms the change newly
// mentions join the commit and wait on this term's approval; shape
// operations make every referrer approve again.
func (e *Engine) compoundChange(ctx context.Context, c change.Change, rec *commit.Record, pass int64, log *slog.Logger) (Outcome, error) {
	oc := e.open
	res, err := propagate.Change(ctx, c, oc.cache)
	if err != nil {
		err = passError(c.Name(), err)
		e.abortOnStorage(err, log)
		return Outcome{}, err
	}
	oc.noteRename(c)
	name := c.Updated.Name

	added, _ := impact.MentionDelta(c)
	var joined []string
	for _, n := range added {
		if n == c.Original.Name || n == name {
			continue
		}
		if _, ok := oc.cache.Record(n); ok {
			continue
		}
		xRec, err := oc.cache.Promote(n)
		if err != nil {
			err = passError(n, err)
			e.abortOnStorage(err, log)
			return Outcome{}, err
		}
		f := commit.NewFlag()
		rec.AddApprovalWaiter(f)
		xRec.WaitApprovalFrom(name, f)
		joined = append(joined, n)
	}
	if c.HasOps() {
		if err := oc.requireApprovals(ctx, name, rec, c.Original.ReferrersExcept(c.Original.Name)); err != nil {
			e.abortOnStorage(err, log)
			return Outcome{}, err
		}
	}

	updated := res.Names()
	waiting := oc.waitingOn()
	RecordAffected(len(updated))
	log.Info("change compounded", "commit", oc.id, "change", c.String(), "joined", joined, "waiting_on", waiting)
	return Outcome{
		Pass:      pass,
		Decision:  policy.RequiresConfirmation,
		CommitID:  oc.id,
		Updated:   updated,
		WaitingOn: waiting,
	}, nil
}

// PropagateDeletion deletes the named term. It returns true if the
// deletion was applied immediately, false if it was staged in a commit
// awaiting the approval of the term's referrers.
func (e *Engine) PropagateDeletion(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name = term.NormalizeName(name)
	current, err := e.current(ctx, name)
	if err != nil {
		return false, err
	}
	d := change.Deletion{Term: current.Clone()}

	pass := e.clock.Next()
	decision := policy.ClassifyDeletion(d)
	log := e.logger.With("pass", pass, "term", name)
	log.Debug("propagating deletion", "decision", decision.String())

	if e.open != nil {
		if rec, ok := e.open.cache.Record(name); ok {
			err := e.compoundDeletion(ctx, d, rec, log)
			RecordDeletion(modeCompounded, err)
			return false, err
		}
		if err := e.checkDisjoint(append(impact.OfDeletion(d), name)...); err != nil {
			RecordDeletion(modeAutomatic, err)
			return false, err
		}
		if decision == policy.RequiresConfirmation {
			err := newError(ErrCodeNotReady, name, "commit %s is already open", e.open.id)
			RecordDeletion(modeStaged, err)
			return false, err
		}
	}

	if decision == policy.Automatic {
		err := e.applyDeletion(ctx, d, log)
		RecordDeletion(modeAutomatic, err)
		return err == nil, err
	}
	err = e.stageDeletion(ctx, d, log)
	RecordDeletion(modeStaged, err)
	return false, err
}

func (e *Engine) applyDeletion(ctx context.Context, d change.Deletion, log *slog.Logger) error {
	name := d.Term.Name
	cache := workset.New(e.store)
	defer cache.Discard()

	res, err := propagate.Deletion(ctx, d, cache)
	if err != nil {
		return passError(name, err)
	}
	if _, err := e.flush(ctx, cache, e.ids.Generate(), nil); err != nil {
		return err
	}

	updated := res.Names()
	RecordAffected(len(updated))
	log.Info("deletion applied", "updated", updated)
	return nil
}

func (e *Engine) stageDeletion(ctx context.Context, d change.Deletion, log *slog.Logger) error {
	name := d.Term.Name
	cache := workset.New(e.store)
	if _, err := cache.Get(ctx, name); err != nil {
		cache.Discard()
		return passError(name, err)
	}
	rec, err := cache.Promote(name)
	if err != nil {
		cache.Discard()
		return passError(name, err)
	}
	res, err := propagate.Deletion(ctx, d, cache)
	if err != nil {
		cache.Discard()
		return passError(name, err)
	}

	oc := newOpenCommit(e.ids.Generate(), cache)
	if err := oc.requireApprovals(ctx, name, rec, d.Term.ReferrersExcept(name)); err != nil {
		cache.Discard()
		return err
	}
	e.open = oc

	RecordAffected(len(res.Updates))
	log.Info("commit opened", "commit", oc.id, "deletion", name, "waiting_on", oc.waitingOn())
	return nil
}

func (e *Engine) compoundDeletion(ctx context.Context, d change.Deletion, rec *commit.Record, log *slog.Logger) error {
	oc := e.open
	name := d.Term.Name
	res, err := propagate.Deletion(ctx, d, oc.cache)
	if err != nil {
		err = passError(name, err)
		e.abortOnStorage(err, log)
		return err
	}
	if err := oc.requireApprovals(ctx, name, rec, d.Term.ReferrersExcept(name)); err != nil {
		e.abortOnStorage(err, log)
		return err
	}
	RecordAffected(len(res.Updates))
	log.Info("deletion compounded", "commit", oc.id, "waiting_on", oc.waitingOn())
	return nil
}

// Approve records the approval of the named participant and reports
// whether the commit is now ready to finish.
func (e *Engine) Approve(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open == nil {
		return false, newError(ErrCodeNoCommit, name, "no commit is open")
	}
	name = term.NormalizeName(name)
	rec, ok := e.open.cache.Record(name)
	if !ok {
		return false, newError(ErrCodeUnknownTerm, name, "not a participant of commit %s", e.open.id)
	}
	rec.ApproveAll()
	RecordApproval()

	ready := e.open.ready()
	e.logger.Info("approved", "commit", e.open.id, "term", name, "ready", ready)
	return ready, nil
}

// FinishCommit flushes the open commit to the store in one batch and
// returns the names it deleted, sorted. A renamed term's old name counts
// as deleted.
//
// It fails with COMMIT_PENDING while any participant is waiting, and
// with CONFLICT if the store changed under a staged term; in both cases
// the commit stays open. A storage failure closes the commit.
func (e *Engine) FinishCommit(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open == nil {
		return nil, newError(ErrCodeNoCommit, "", "no commit is open")
	}
	oc := e.open
	if !oc.ready() {
		return nil, newError(ErrCodeCommitPending, "", "commit %s is waiting on %s",
			oc.id, strings.Join(oc.waitingOn(), ", "))
	}
	if err := e.checkDrift(ctx, oc.cache.Pending()); err != nil {
		RecordCommit("conflict")
		return nil, err
	}

	deleted, err := e.flush(ctx, oc.cache, oc.id, oc.renames)
	if err != nil {
		e.logger.Error("commit failed", "commit", oc.id, "error", err)
		e.closeCommit("failed")
		return nil, err
	}
	e.closeCommit("finished")

	sort.Strings(deleted)
	e.logger.Info("commit finished", "commit", oc.id, "deleted", deleted)
	return deleted, nil
}

// checkDrift fails if any store entry the commit staged against has
// changed since it was loaded, or a name the commit creates was taken.
func (e *Engine) checkDrift(ctx context.Context, pending []workset.Pending) error {
	for _, p := range pending {
		if p.Origin == "" {
			if p.Deleted {
				continue
			}
			_, err := e.store.Get(ctx, p.Name)
			if err == nil {
				return newError(ErrCodeConflict, p.Name, "term was created in the store while the commit was open")
			}
			if !errors.Is(err, store.ErrNotFound) {
				return wrapError(ErrCodeStorage, p.Name, err, "read failed")
			}
			continue
		}

		cur, err := e.store.Get(ctx, p.Origin)
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeConflict, p.Origin, "term was deleted from the store while the commit was open")
		}
		if err != nil {
			return wrapError(ErrCodeStorage, p.Origin, err, "read failed")
		}
		fp, err := cur.Fingerprint()
		if err != nil {
			return wrapError(ErrCodeStorage, p.Origin, err, "fingerprint failed")
		}
		if fp != p.Base {
			return newError(ErrCodeConflict, p.Origin, "term changed in the store while the commit was open")
		}
	}
	return nil
}

// RevertCommit discards the open commit. Nothing was written to the
// store, so nothing is undone there. Without an open commit it does
// nothing.
func (e *Engine) RevertCommit() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open == nil {
		return
	}
	e.logger.Info("commit reverted", "commit", e.open.id)
	e.closeCommit("reverted")
}

// Create adds a new term. Creation never breaks a caller, so it is
// always applied immediately; the terms it mentions gain a back-reference.
func (e *Engine) Create(ctx context.Context, t *term.Term) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t = t.Clone()
	t.Name = term.NormalizeName(t.Name)
	t.ReferredBy = nil
	if err := t.Validate(); err != nil {
		return Outcome{}, wrapError(ErrCodeInvalidChange, t.Name, err, "invalid term")
	}

	_, err := e.current(ctx, t.Name)
	switch CodeOf(err) {
	case "":
		return Outcome{}, newError(ErrCodeNameTaken, t.Name, "term already exists")
	case ErrCodeUnknownTerm:
		if e.open != nil && e.open.cache.Contains(t.Name) {
			return Outcome{}, newError(ErrCodeNotReady, t.Name, "name is being deleted in commit %s", e.open.id)
		}
	default:
		return Outcome{}, err
	}

	skeleton := &term.Term{Name: t.Name, Args: append([]term.Argument(nil), t.Args...)}
	c := change.Change{Original: skeleton, Updated: t}
	if err := e.checkDisjoint(impact.OfChange(c)...); err != nil {
		RecordChange(modeAutomatic, err)
		return Outcome{}, err
	}

	pass := e.clock.Next()
	log := e.logger.With("pass", pass, "term", t.Name)
	out, err := e.applyChange(ctx, c, pass, log)
	RecordChange(modeAutomatic, err)
	return out, err
}

// ParticipantStatus is the protocol state of one participant.
type ParticipantStatus struct {
	Name      string
	State     string
	WaitingOn []string
	Deleted   bool
}

// CommitStatus describes the open commit, if any.
type CommitStatus struct {
	Open         bool
	ID           string
	Ready        bool
	Participants []ParticipantStatus
}

// Status reports the state of the open commit.
func (e *Engine) Status() CommitStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open == nil {
		return CommitStatus{}
	}
	st := CommitStatus{Open: true, ID: e.open.id, Ready: e.open.ready()}
	for _, n := range e.open.cache.Participants() {
		rec, _ := e.open.cache.Record(n)
		st.Participants = append(st.Participants, ParticipantStatus{
			Name:      n,
			State:     rec.State().String(),
			WaitingOn: rec.WaitingOn(),
			Deleted:   e.open.cache.Deleted(n),
		})
	}
	return st
}
