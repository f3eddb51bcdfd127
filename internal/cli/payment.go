package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/debtdesk/caseflow/internal/daemon"
)

func init() {
	rootCmd.AddCommand(paymentCmd)
	paymentCmd.AddCommand(paymentApplyCmd)

	paymentApplyCmd.Flags().String("case", "", "Case ID")
	paymentApplyCmd.Flags().String("payment", "", "Payment ID (the idempotency key together with the case ID)")
	paymentApplyCmd.Flags().String("amount", "", "Amount, e.g. 1500.25")
	paymentApplyCmd.MarkFlagRequired("case")
	paymentApplyCmd.MarkFlagRequired("payment")
	paymentApplyCmd.MarkFlagRequired("amount")
}

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Apply payments by hand",
}

// ─── payment apply ──────────────────────────────────────────────────────────

var paymentApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply one payment to a case",
	Long: `Apply a payment directly against the configured store, bypassing the
broker. Safe to repeat: a payment already applied to the case is reported
as a duplicate and changes nothing. No events are published.`,
	RunE: runPaymentApply,
}

func runPaymentApply(cmd *cobra.Command, args []string) error {
	caseID, _ := cmd.Flags().GetString("case")
	paymentID, _ := cmd.Flags().GetString("payment")
	rawAmount, _ := cmd.Flags().GetString("amount")

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", rawAmount, err)
	}

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

	res, err := core.Engine.ApplyPayment(cmd.Context(), caseID, paymentID, amount)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
