package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/termbase/internal/engine"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/textio"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty knowledge base",
		Long: `Create the configured store if it does not exist yet.

Example:
  termbase init --db ./family.db
  termbase init --backend badger --db ./family.badger`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			terms, err := s.backend.All(commandContext(cmd))
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
			}
			if s.out.Format == "json" {
				return s.out.Success(map[string]interface{}{
					"backend": s.cfg.Backend,
					"path":    s.cfg.Path,
					"terms":   len(terms),
				})
			}
			return s.out.Success(fmt.Sprintf("✓ %s store ready at %s (%d terms)", s.cfg.Backend, s.cfg.Path, len(terms)))
		},
	}
}

// ImportResult reports an import.
type ImportResult struct {
	BatchID string   `json:"batch_id"`
	Terms   []string `json:"terms"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import Datalog declarations, facts and rules",
		Long: `Import terms from Datalog source. Every rule must call a term defined
in the same source, and no imported name may exist already. The terms are
written in one batch.

Example:
  termbase import family.dl
  cat family.dl | termbase import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := commandContext(cmd)

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return s.out.Fail(ExitCommandError, ErrCodeInput, err, nil)
		}
		defer f.Close()
		r = f
	}

	terms, err := textio.Read(r)
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeInput, err, nil)
	}

	var taken []string
	names := make([]string, len(terms))
	for i, t := range terms {
		names[i] = t.Name
		_, err := s.backend.Get(ctx, t.Name)
		switch {
		case err == nil:
			taken = append(taken, t.Name)
		case !errors.Is(err, store.ErrNotFound):
			return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
		}
	}
	if len(taken) > 0 {
		err := fmt.Errorf("already defined: %s", strings.Join(taken, ", "))
		return s.out.Fail(ExitFailure, string(engine.ErrCodeNameTaken), err, taken)
	}

	batchID := idGenerator(opts).Generate()
	if err := s.backend.ApplyBatch(ctx, store.Batch{ID: batchID, Puts: terms}); err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
	}
	s.logger.Info("terms imported", "batch", batchID, "count", len(terms))

	if s.out.Format == "json" {
		return s.out.Success(ImportResult{BatchID: batchID, Terms: names})
	}
	return s.out.Success(fmt.Sprintf("✓ imported %d terms: %s", len(names), strings.Join(names, ", ")))
}

func idGenerator(opts *RootOptions) engine.IDGenerator {
	if opts.IDs != nil {
		return opts.IDs
	}
	return engine.UUIDv7Generator{}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the knowledge base as Datalog",
		Long: `Write every term as Datalog source, ordered by name. The output reads
back through import.

Example:
  termbase export > family.dl
  termbase export -o family.dl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			terms, err := s.backend.All(commandContext(cmd))
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
			}
			var buf bytes.Buffer
			if err := textio.Write(&buf, terms); err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
			}

			if output != "" {
				if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
					return s.out.Fail(ExitCommandError, ErrCodeInput, err, nil)
				}
				s.out.VerboseLog("wrote %d terms to %s", len(terms), output)
				if s.out.Format == "json" {
					return s.out.Success(map[string]interface{}{"path": output, "terms": len(terms)})
				}
				return nil
			}
			if s.out.Format == "json" {
				return s.out.Success(map[string]string{"source": buf.String()})
			}
			_, err = s.out.Writer.Write(buf.Bytes())
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <term>",
		Short: "Print one term and the terms that call it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.engine.Lookup(commandContext(cmd), args[0])
			if err != nil {
				return s.out.FailEngine(err)
			}
			if s.out.Format == "json" {
				return s.out.Success(t)
			}
			fmt.Fprint(s.out.Writer, textio.Format(t))
			if len(t.ReferredBy) > 0 {
				fmt.Fprintf(s.out.Writer, "# referred by: %s\n", strings.Join(t.ReferredBy, ", "))
			}
			return nil
		},
	}
}
