package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	After int64
	Limit int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [term]",
		Short: "Show the journal of applied batches",
		Long: `Show journal entries oldest first: one row per term written or deleted,
grouped by the batch or commit id that wrote it. With a term, show only
the entries that touched it.

Example:
  termbase log --after 120 --limit 20
  termbase log mother`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := commandContext(cmd)

			var entries []store.JournalEntry
			if len(args) == 1 {
				entries, err = s.backend.History(ctx, term.NormalizeName(args[0]))
			} else {
				entries, err = s.backend.Journal(ctx, opts.After, opts.Limit)
			}
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
			}

			if s.out.Format == "json" {
				return s.out.Success(entries)
			}
			for _, e := range entries {
				fmt.Fprintf(s.out.Writer, "%6d  %-36s  %-6s  %s\n", e.Seq, e.BatchID, e.Op, e.Name)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "show entries after this sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 = all)")
	return cmd
}
