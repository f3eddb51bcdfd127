package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the payment consumer and the HTTP API",
	Long: `Connect to RabbitMQ, consume payment.completed events one at a time and
serve the read-only case API. Stops cleanly on SIGINT or SIGTERM after the
in-flight event has been handled.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := daemon.OpenCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	logger.Info("caseflow starting",
		zap.String("store", cfg.Store.Driver),
		zap.String("ledger", cfg.Ledger.Driver),
		zap.String("publisher", cfg.Publisher.Driver),
		zap.String("transition_order", cfg.Reconcile.TransitionOrder))

	return daemon.New(cfg, core, logger).Run(ctx)
}
