package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/api"
	"github.com/debtdesk/caseflow/internal/app/consumer"
	"github.com/debtdesk/caseflow/internal/app/publisher"
	"github.com/debtdesk/caseflow/internal/app/reconcile"
	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/kafka"
	"github.com/debtdesk/caseflow/internal/infra/ledger"
	"github.com/debtdesk/caseflow/internal/infra/memory"
	"github.com/debtdesk/caseflow/internal/infra/observability"
	"github.com/debtdesk/caseflow/internal/infra/rabbitmq"
	"github.com/debtdesk/caseflow/internal/infra/sqlite"
)

// ─── Core ───────────────────────────────────────────────────────────────────

// Core is the transport-independent part of the pipeline: stores, ledgers
// and the reconciliation engine. The CLI uses it directly.
type Core struct {
	Store   domain.CaseStore
	History domain.HistoryLog
	Ledger  domain.Ledger
	Events  consumer.EventLog
	Engine  *reconcile.Engine
	Logger  *zap.Logger

	closers []func() error
}

// OpenCore builds the stores and engine selected by cfg.
func OpenCore(ctx context.Context, cfg Config, logger *zap.Logger) (*Core, error) {
	logger = observability.OrNop(logger)
	core := &Core{Logger: logger}
	bounds := ledger.Config{MaxEntries: cfg.Ledger.MaxEntries, EvictCount: cfg.Ledger.EvictCount}

	var db *sqlite.DB
	switch cfg.Store.Driver {
	case "sqlite":
		var err error
		db, err = sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		core.closers = append(core.closers, db.Close)
		core.Store = db.Cases()
		core.History = db.History()
	default:
		logger.Warn("using in-memory case store; state is lost on exit")
		core.Store = memory.NewCaseStore()
		core.History = memory.NewHistoryLog()
	}

	switch cfg.Ledger.Driver {
	case "sqlite":
		if db == nil {
			return nil, errors.New("ledger.driver sqlite requires store.driver sqlite")
		}
		core.Ledger = db.Ledger(sqlite.NamespacePayments, bounds)
		core.Events = db.Ledger(sqlite.NamespaceEvents, bounds)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			core.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		core.closers = append(core.closers, client.Close)
		core.Ledger = ledger.NewRedis(client, cfg.Redis.Prefix+":ledger:payments", bounds)
		core.Events = ledger.NewRedis(client, cfg.Redis.Prefix+":ledger:events", bounds)
	default:
		core.Ledger = ledger.NewMemory(bounds)
		core.Events = ledger.NewEvents(bounds)
	}

	core.Engine = reconcile.New(reconcile.Config{
		Actor:               cfg.Reconcile.Actor,
		Order:               reconcile.TransitionOrder(cfg.Reconcile.TransitionOrder),
		EnforcePaymentGuard: cfg.Reconcile.EnforcePaymentGuard,
	}, core.Store, core.History, core.Ledger, logger)

	return core, nil
}

// Close releases stores and connections in reverse order of opening.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Topology returns the broker names configured under [amqp].
func (c Config) Topology() rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:           c.AMQP.Exchange,
		DeadLetterExchange: c.AMQP.DeadLetterExchange,
		Queue:              c.AMQP.Queue,
		DeadLetterQueue:    c.AMQP.DeadLetterQueue,
	}
}

// ─── Daemon ─────────────────────────────────────────────────────────────────

// Daemon runs the consumer loop and the HTTP API.
type Daemon struct {
	cfg    Config
	core   *Core
	root   *zap.Logger // handed to components, which name themselves
	logger *zap.Logger
}

// New creates a daemon over an opened core.
func New(cfg Config, core *Core, logger *zap.Logger) *Daemon {
	root := observability.OrNop(logger)
	return &Daemon{cfg: cfg, core: core, root: root, logger: root.Named("daemon")}
}

// Run connects to the broker and processes payments until ctx is cancelled
// or the broker connection drops. It returns after the in-flight delivery
// has finished and the HTTP server has shut down.
func (d *Daemon) Run(ctx context.Context) error {
	conn, err := rabbitmq.Dial(d.cfg.AMQP.URL)
	if err != nil {
		return err
	}
	defer conn.Close()
	closed := conn.NotifyClose()

	top := d.cfg.Topology()
	if d.cfg.AMQP.DeclareTopology {
		if err := top.Declare(conn.Consume); err != nil {
			return fmt.Errorf("declare topology: %w", err)
		}
	}

	notifier, closeSink, err := d.notifier(conn, top)
	if err != nil {
		return err
	}
	defer closeSink()

	cons := consumer.New(consumer.Config{MaxRetries: d.cfg.Consumer.MaxRetries},
		d.core.Engine, notifier, d.core.Events, d.root)

	stopHTTP := d.serveHTTP(cons)
	defer stopHTTP()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case amqpErr := <-closed:
			if amqpErr != nil {
				d.logger.Error("broker connection lost", zap.String("reason", amqpErr.Reason))
			}
			cancel()
		case <-runCtx.Done():
		}
	}()

	sub := rabbitmq.NewSubscriber(conn.Consume, rabbitmq.SubscriberConfig{
		Queue:       d.cfg.AMQP.Queue,
		ConsumerTag: d.cfg.AMQP.ConsumerTag,
		Prefetch:    d.cfg.AMQP.Prefetch,
		RetryMode:   rabbitmq.RetryMode(d.cfg.AMQP.RetryMode),
	}, d.root)
	deliveries, err := sub.Deliveries(runCtx)
	if err != nil {
		return err
	}

	err = cons.Run(runCtx, deliveries)
	sub.Stop()
	if ctx.Err() != nil {
		d.logger.Info("shutting down")
		return nil
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return errors.New("delivery stream closed by broker")
	}
	return err
}

// notifier builds the publisher for the configured sink. A nil notifier
// means derived events are disabled.
func (d *Daemon) notifier(conn *rabbitmq.Conn, top rabbitmq.Topology) (consumer.Notifier, func(), error) {
	timeout, err := d.cfg.PublishTimeout()
	if err != nil {
		return nil, nil, err
	}
	pcfg := publisher.Config{Source: d.cfg.Service.Name, Timeout: timeout}

	switch d.cfg.Publisher.Driver {
	case "kafka":
		sink := kafka.NewSink(kafka.NewWriter(kafka.Config{
			Brokers:      d.cfg.Kafka.Brokers,
			BatchTimeout: kafka.DefaultConfig().BatchTimeout,
		}), d.cfg.Kafka.TopicPrefix)
		closeSink := func() {
			if err := sink.Close(); err != nil {
				d.logger.Warn("close kafka writer", zap.Error(err))
			}
		}
		return publisher.New(pcfg, sink, d.root), closeSink, nil
	case "none":
		d.logger.Info("derived events disabled")
		return nil, func() {}, nil
	default:
		sink := rabbitmq.NewSink(conn.Publish, top.Exchange, d.cfg.Service.Name)
		return publisher.New(pcfg, sink, d.root), func() {}, nil
	}
}

// serveHTTP starts the API server if enabled and returns its stop function.
func (d *Daemon) serveHTTP(cons *consumer.Consumer) func() {
	if !d.cfg.API.Enabled {
		return func() {}
	}

	srv := api.NewServer(d.core.Engine, d.core.Store, d.core.History, d.root)
	srv.EnableMetrics()
	srv.SetConsumerStats(cons.Stats)
	srv.SetCORSOrigins(d.cfg.API.CORSOrigins)

	httpSrv := &http.Server{
		Addr:              d.cfg.API.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		d.logger.Info("http listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("http server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			d.logger.Warn("http shutdown", zap.Error(err))
		}
	}
}
