package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/debtdesk/caseflow/internal/infra/rabbitmq"
)

func init() {
	rootCmd.AddCommand(topologyCmd)
	topologyCmd.AddCommand(topologyDeclareCmd)
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Manage the RabbitMQ exchanges and queues",
}

var topologyDeclareCmd = &cobra.Command{
	Use:   "declare",
	Short: "Declare exchanges, queues and bindings",
	Long: `Declare the event exchange, the dead-letter exchange, the payment queue
with its dead-letter routing, and the dead-letter queue. Safe to repeat.`,
	RunE: runTopologyDeclare,
}

func runTopologyDeclare(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := rabbitmq.Dial(cfg.AMQP.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	top := cfg.Topology()
	if err := top.Declare(conn.Consume); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Declared exchange %s and dead-letter exchange %s\n", top.Exchange, top.DeadLetterExchange)
	fmt.Fprintf(out, "Declared queue %s → dead-letter queue %s\n", top.Queue, top.DeadLetterQueue)
	return nil
}
