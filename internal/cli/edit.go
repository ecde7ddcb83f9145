package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/termbase/internal/change"
	"github.com/roach88/termbase/internal/impact"
	"github.com/roach88/termbase/internal/term"
)

// EditOptions holds flags shared by the mutating commands.
type EditOptions struct {
	*RootOptions

	// ApproveAll approves every participant of a staged commit and
	// finishes it in the same invocation.
	ApproveAll bool
}

// EditResult reports what a mutating command did.
type EditResult struct {
	Op        string   `json:"op"`
	Term      string   `json:"term"`
	Applied   bool     `json:"applied"`
	CommitID  string   `json:"commit_id,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Approved  []string `json:"approved,omitempty"`
	Deleted   []string `json:"deleted,omitempty"`
	WaitingOn []string `json:"waiting_on,omitempty"`
}

func (r EditResult) String() string {
	var buf strings.Builder
	if r.CommitID != "" {
		fmt.Fprintf(&buf, "✓ %s %s committed as %s", r.Op, r.Term, r.CommitID)
	} else {
		fmt.Fprintf(&buf, "✓ %s %s applied", r.Op, r.Term)
	}
	if len(r.Updated) > 0 {
		fmt.Fprintf(&buf, "\n  updated: %s", strings.Join(r.Updated, ", "))
	}
	if len(r.Approved) > 0 {
		fmt.Fprintf(&buf, "\n  approved: %s", strings.Join(r.Approved, ", "))
	}
	if len(r.Deleted) > 0 {
		fmt.Fprintf(&buf, "\n  deleted: %s", strings.Join(r.Deleted, ", "))
	}
	return buf.String()
}

// newEditCommand builds a command that edits one term. build applies
// the edit to the editor given the remaining arguments.
func newEditCommand(rootOpts *RootOptions, use, short, long string, nargs cobra.PositionalArgs,
	build func(ed *change.Editor, args []string) error) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}
	op := strings.Fields(use)[0]

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  nargs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := commandContext(cmd)

			original, err := s.engine.Lookup(ctx, args[0])
			if err != nil {
				return s.out.FailEngine(err)
			}
			ed := change.Edit(original)
			if err := build(ed, args[1:]); err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeInput, err, nil)
			}
			c, err := ed.Change()
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeInput, err, nil)
			}

			out, err := s.engine.PropagateChange(ctx, c)
			if err != nil {
				return s.out.FailEngine(err)
			}
			result := EditResult{Op: op, Term: original.Name, Applied: out.Applied, Updated: out.Updated}
			if out.Applied {
				return s.out.Success(result)
			}
			return s.settle(ctx, opts, result)
		},
	}

	cmd.Flags().BoolVar(&opts.ApproveAll, "approve-all", false, "approve every affected term and finish the commit")
	return cmd
}

// settle finishes or reverts the commit a staged edit opened. A CLI
// process cannot hold a commit open across invocations, so without
// --approve-all the commit is reverted and the approvers reported.
func (s *session) settle(ctx context.Context, opts *EditOptions, result EditResult) error {
	status := s.engine.Status()
	result.CommitID = status.ID

	if !opts.ApproveAll {
		var waiting []string
		for _, p := range status.Participants {
			waiting = append(waiting, p.WaitingOn...)
		}
		waiting = impact.Dedup(waiting)
		s.engine.RevertCommit()
		result.WaitingOn = waiting
		err := fmt.Errorf("%s %s needs approval from %s; rerun with --approve-all",
			result.Op, result.Term, strings.Join(waiting, ", "))
		return s.out.Fail(ExitFailure, ErrCodeNeedsApproval, err, result)
	}

	for _, p := range status.Participants {
		if _, err := s.engine.Approve(p.Name); err != nil {
			s.engine.RevertCommit()
			return s.out.FailEngine(err)
		}
		result.Approved = append(result.Approved, p.Name)
		s.out.VerboseLog("approved %s", p.Name)
	}
	deleted, err := s.engine.FinishCommit(ctx)
	if err != nil {
		s.engine.RevertCommit()
		return s.out.FailEngine(err)
	}
	result.Applied = true
	result.Deleted = deleted
	return s.out.Success(result)
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return newEditCommand(rootOpts, "rename <term> <new-name>", "Rename a term and every call to it",
		`Rename a term. Every rule that calls it is rewritten and every
back-reference follows. A rename never needs approval.

Example:
  termbase rename mother mom`,
		cobra.ExactArgs(2), func(ed *change.Editor, args []string) error {
			ed.Rename(args[0])
			return nil
		})
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return newEditCommand(rootOpts, "describe <term> <text>", "Replace a term's description",
		`Replace the documentation text of a term.

Example:
  termbase describe mother "X is the mother of Y"`,
		cobra.MinimumNArgs(2), func(ed *change.Editor, args []string) error {
			ed.Describe(strings.Join(args, " "))
			return nil
		})
}

// NewAddArgCommand creates the add-arg command.
func NewAddArgCommand(rootOpts *RootOptions) *cobra.Command {
	var description string
	cmd := newEditCommand(rootOpts, "add-arg <term> <name>", "Append an argument to a term",
		`Append an argument. Every call to the term gains a wildcard in the new
position, so a term with callers needs their approval.

Example:
  termbase add-arg parent Since --approve-all`,
		cobra.ExactArgs(2), func(ed *change.Editor, args []string) error {
			ed.AppendArg(term.Argument{Name: args[0], Description: description})
			return nil
		})
	cmd.Flags().StringVar(&description, "description", "", "argument description")
	return cmd
}

// NewRemoveArgCommand creates the remove-arg command.
func NewRemoveArgCommand(rootOpts *RootOptions) *cobra.Command {
	return newEditCommand(rootOpts, "remove-arg <term> <index>", "Remove an argument from a term",
		`Remove the argument at a zero-based position. Every call to the term
drops the binding in that position.

Example:
  termbase remove-arg parent 2 --approve-all`,
		cobra.ExactArgs(2), func(ed *change.Editor, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[0], err)
			}
			ed.RemoveArg(index)
			return nil
		})
}

// NewReorderArgsCommand creates the reorder-args command.
func NewReorderArgsCommand(rootOpts *RootOptions) *cobra.Command {
	return newEditCommand(rootOpts, "reorder-args <term> <from>...", "Permute a term's arguments",
		`Permute the arguments: position i of the result takes the argument
that was at position <from>[i]. Every call to the term is permuted the
same way.

Example:
  termbase reorder-args parent 1 0 --approve-all`,
		cobra.MinimumNArgs(2), func(ed *change.Editor, args []string) error {
			order := make([]int, len(args))
			for i, a := range args {
				n, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("position %q: %w", a, err)
				}
				order[i] = n
			}
			ed.ReorderArgs(order...)
			return nil
		})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <term>",
		Short: "Delete a term and strip the calls to it",
		Long: `Delete a term. Calls to it are removed from every referring rule, and a
rule left with an empty body is dropped, so a term with callers needs
their approval.

Example:
  termbase delete parent --approve-all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := commandContext(cmd)

			name := term.NormalizeName(args[0])
			applied, err := s.engine.PropagateDeletion(ctx, name)
			if err != nil {
				return s.out.FailEngine(err)
			}
			result := EditResult{Op: "delete", Term: name, Applied: applied}
			if applied {
				result.Deleted = []string{name}
				return s.out.Success(result)
			}
			return s.settle(ctx, opts, result)
		},
	}

	cmd.Flags().BoolVar(&opts.ApproveAll, "approve-all", false, "approve every affected term and finish the commit")
	return cmd
}
