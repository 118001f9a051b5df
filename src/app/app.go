// Package app builds the service container: every shared component (store,
// breaker, gateway, broadcaster, enrichment services) is constructed once
// here and handed to the surfaces that need it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"

	"freeda-support/src/analytics"
	"freeda-support/src/breaker"
	"freeda-support/src/broker"
	"freeda-support/src/clock"
	"freeda-support/src/config"
	"freeda-support/src/contracts"
	"freeda-support/src/events"
	"freeda-support/src/gateway"
	"freeda-support/src/logger"
	"freeda-support/src/orchestrator"
	"freeda-support/src/rag"
	"freeda-support/src/smartreply"
	"freeda-support/src/store"
)

// App holds the process-wide components.
type App struct {
	Config *config.Config
	Mode   Mode
	Logger logger.Logger
	Clock  clock.Clock

	Store        store.Store
	Broker       broker.Broker
	Broadcaster  *events.Broadcaster
	Breaker      *breaker.CircuitBreaker
	Gateway      *gateway.Client
	Analytics    *analytics.Service
	Knowledge    *rag.KnowledgeBase
	Replies      *smartreply.Matcher
	Orchestrator *orchestrator.Orchestrator
}

// Option customizes New, mostly for tests.
type Option func(*options)

type options struct {
	clock      clock.Clock
	store      store.Store
	broker     broker.Broker
	gatewayOps []gateway.Option
}

// WithClock replaces the real clock.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithStore uses s instead of the configured storage backend.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithBroker uses b as the event mirror instead of dialing Redpanda.
func WithBroker(b broker.Broker) Option {
	return func(o *options) { o.broker = b }
}

// WithGatewayOptions passes extra options to the gateway client.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(o *options) { o.gatewayOps = append(o.gatewayOps, opts...) }
}

// New wires every component from cfg. On error, anything already opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}

	a := &App{
		Config: cfg,
		Mode:   DetectMode(cfg),
		Logger: log,
		Clock:  o.clock,
	}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error

	if a.Store, err = openStore(ctx, cfg, o.store); err != nil {
		return nil, err
	}

	a.Broker = o.broker
	if a.Broker == nil && a.Mode == DistributedMode {
		rp, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redpanda broker: %w", err)
		}
		a.Broker = rp
	}

	bcOpts := []events.Option{events.WithLogger(log)}
	if a.Broker != nil {
		bcOpts = append(bcOpts, events.WithMirror(a.Broker))
	}
	a.Broadcaster = events.New(bcOpts...)

	a.Breaker = breaker.New(breaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryWindow:   cfg.RecoveryWindow,
	}, a.Clock)

	if cfg.GatewayEnabled() {
		gwOpts := append([]gateway.Option{
			gateway.WithBreaker(a.Breaker),
			gateway.WithClock(a.Clock),
			gateway.WithLogger(log),
		}, o.gatewayOps...)
		a.Gateway, err = gateway.New(gatewayConfig(cfg), gwOpts...)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("[App] MISTRAL_API_KEY not set, replies will use the degraded text")
	}

	if a.Replies, err = loadReplies(cfg); err != nil {
		return nil, err
	}

	deps := orchestrator.Deps{
		Store:        a.Store,
		Broadcaster:  a.Broadcaster,
		Replies:      a.Replies,
		Logger:       log,
		Clock:        a.Clock,
		SystemPrompt: cfg.SystemPrompt,
	}
	// Typed nils must not leak into the optional interfaces.
	if a.Gateway != nil {
		deps.Gateway = a.Gateway
		if cfg.EnableAnalytics {
			a.Analytics = analytics.NewService(a.Gateway, a.Clock, log)
			deps.Analytics = a.Analytics
		}
		if cfg.EnableRAG {
			a.Knowledge = rag.New(a.Gateway, log)
			a.loadKnowledge(ctx)
			deps.RAG = a.Knowledge
		}
	}

	if a.Orchestrator, err = orchestrator.New(deps); err != nil {
		return nil, err
	}

	ready = true
	log.Info("[App] Ready (mode=%s, storage=%s, gateway=%v, analytics=%v, rag=%v)",
		a.Mode, cfg.StorageType, a.Gateway != nil, a.Analytics != nil, a.Knowledge != nil)
	return a, nil
}

// Start runs background work until ctx is done. In distributed mode it
// relays events mirrored by other replicas to local viewers. The relay
// subscription is in place when Start returns.
func (a *App) Start(ctx context.Context) error {
	if a.Broker == nil {
		return nil
	}
	group := "freeda-relay-" + uuid.NewString()
	msgs, err := a.Broker.Subscribe(ctx, contracts.TopicTicketEvents, group)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicTicketEvents, err)
	}
	go func() {
		if err := a.Broadcaster.Consume(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("[App] Event relay stopped: %v", err)
		}
	}()
	return nil
}

// Close releases every component. It is safe to call on a partly built App.
func (a *App) Close() error {
	var errs []error
	if a.Broadcaster != nil {
		a.Broadcaster.Close()
	}
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	gc := gateway.DefaultConfig()
	gc.APIKey = cfg.MistralAPIKey
	gc.BaseURL = cfg.MistralBaseURL
	gc.DefaultModel = cfg.MistralModel
	gc.FallbackModels = cfg.FallbackModels
	gc.MaxConcurrency = cfg.MaxConcurrency
	gc.MaxRetries = cfg.MaxRetries
	gc.BackoffBase = cfg.BackoffBase
	gc.RequestTimeout = cfg.RequestTimeout
	gc.Breaker = breaker.Config{FailureThreshold: cfg.FailureThreshold, RecoveryWindow: cfg.RecoveryWindow}
	return gc
}

func openStore(ctx context.Context, cfg *config.Config, override store.Store) (store.Store, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.StorageType {
	case config.StorageFile:
		fileStore, err := store.NewFileStore(cfg.TicketsFile)
		if err != nil {
			return nil, err
		}
		return fileStore, nil
	case config.StoragePostgres:
		pg, err := store.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func loadReplies(cfg *config.Config) (*smartreply.Matcher, error) {
	if cfg.CannedRepliesFile == "" {
		return smartreply.Default(), nil
	}
	return smartreply.LoadRules(cfg.CannedRepliesFile)
}

// loadKnowledge indexes the knowledge base file. A missing file leaves the
// base empty, which simply means no context is added to prompts.
func (a *App) loadKnowledge(ctx context.Context) {
	n, err := a.Knowledge.Load(ctx, a.Config.KnowledgeBaseFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.Logger.Warn("[App] Knowledge base %s not found, RAG context disabled", a.Config.KnowledgeBaseFile)
	case err != nil:
		a.Logger.Error("[App] Failed to load knowledge base: %v", err)
	default:
		a.Logger.Info("[App] Knowledge base ready with %d documents", n)
	}
}
