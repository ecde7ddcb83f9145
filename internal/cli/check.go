package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/termbase/internal/engine"
)

// CheckResult reports a consistency check.
type CheckResult struct {
	Consistent bool               `json:"consistent"`
	Violations []engine.Violation `json:"violations,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every call and back-reference in the knowledge base",
		Long: `Verify that every rule calls an existing term, that every called term
lists its caller in referred_by, and that no term lists a caller that
does not call it.

Exit codes:
  0 - Consistent
  1 - Violations found
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			violations, err := engine.CheckConsistency(commandContext(cmd), s.backend)
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
			}
			if len(violations) == 0 {
				if s.out.Format == "json" {
					return s.out.Success(CheckResult{Consistent: true})
				}
				return s.out.Success("✓ knowledge base consistent")
			}

			if s.out.Format != "json" {
				for _, v := range violations {
					fmt.Fprintf(s.out.Writer, "✗ %s\n", v)
				}
			}
			err = fmt.Errorf("%d violations", len(violations))
			return s.out.Fail(ExitFailure, ErrCodeInconsistent, err, CheckResult{Violations: violations})
		},
	}
}
