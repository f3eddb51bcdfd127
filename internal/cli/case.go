package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/daemon"
	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

func init() {
	rootCmd.AddCommand(caseCmd)
	caseCmd.AddCommand(caseStatusCmd)
	caseCmd.AddCommand(caseShowCmd)
	caseCmd.AddCommand(caseHistoryCmd)
	caseCmd.AddCommand(caseImportCmd)
}

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Inspect and load collection cases",
}

// ─── case status ────────────────────────────────────────────────────────────

var caseStatusCmd = &cobra.Command{
	Use:   "status CASE_ID",
	Short: "Show whether a case advertises itself as accepting payments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(core *daemon.Core) error {
			view, err := core.Engine.CaseStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		})
	},
}

// ─── case show ──────────────────────────────────────────────────────────────

var caseShowCmd = &cobra.Command{
	Use:   "show CASE_ID",
	Short: "Print the full case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(core *daemon.Core) error {
			c, err := core.Store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		})
	},
}

// ─── case history ───────────────────────────────────────────────────────────

var caseHistoryCmd = &cobra.Command{
	Use:   "history CASE_ID",
	Short: "Print the audit trail of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(core *daemon.Core) error {
			entries, err := core.History.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No history for %s.\n", args[0])
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-16s  %s  (%s)\n",
					e.CreatedAt.Format(time.RFC3339), e.Kind, e.Description, e.Actor)
			}
			return nil
		})
	},
}

// ─── case import ────────────────────────────────────────────────────────────

var caseImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load cases from a JSON array",
	Long: `Load cases from a JSON file holding an array of cases in the API's case
format. currentDebt is always recomputed. Existing cases are replaced; new
cases get a CASE_CREATED history entry.`,
	Args: cobra.ExactArgs(1),
	RunE: runCaseImport,
}

func runCaseImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var cases []domain.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	for i, c := range cases {
		if c.ID == "" {
			return fmt.Errorf("case #%d: id is required", i+1)
		}
		if !c.Status.Valid() {
			return fmt.Errorf("case %s: unknown status %q", c.ID, c.Status)
		}
	}

	return withCore(cmd, func(core *daemon.Core) error {
		created, err := importCases(cmd.Context(), core, cases, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cases (%d new).\n", len(cases), created)
		return nil
	})
}

// importCases stores cases and returns how many were new. A history failure
// is logged; the case itself is already stored.
func importCases(ctx context.Context, core *daemon.Core, cases []domain.Case, source string) (int, error) {
	logger := observability.OrNop(core.Logger)
	now := time.Now().UTC()
	created := 0

	for i := range cases {
		c := &cases[i]
		_, err := core.Store.Get(ctx, c.ID)
		isNew := errors.Is(err, domain.ErrCaseNotFound)
		if err != nil && !isNew {
			return created, err
		}

		c.RecomputeDebt()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		if err := core.Store.Put(ctx, c); err != nil {
			return created, fmt.Errorf("store %s: %w", c.ID, err)
		}
		if !isNew {
			continue
		}
		created++
		if err := core.History.Append(ctx, c.ID, domain.HistoryCaseCreated,
			fmt.Sprintf("Case imported from %s", source), "import"); err != nil {
			logger.Warn("append history failed",
				zap.String("case_id", c.ID), zap.String("kind", string(domain.HistoryCaseCreated)), zap.Error(err))
		}
	}
	return created, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func withCore(cmd *cobra.Command, fn func(*daemon.Core) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	core, err := daemon.OpenCore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(core)
}
