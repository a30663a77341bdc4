// Package bootstrap is the scaffolding shared by every binary under cmd/:
// environment and config loading, the leveled logger, resource teardown and
// the signal-bound run loop.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/instance"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/migrate"
	"github.com/angelmondragon/maiyom-backend/pkg/pubsub"
	"github.com/angelmondragon/maiyom-backend/pkg/redis"
)

type closer struct {
	name  string
	close func() error
}

// Process owns the resources of one running binary. Resources opened through
// it are closed in reverse order when the process stops or fails.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
	exit    func(code int)
}

// Start loads .env and config for the binary called name and exits on a
// config error.
func Start(name string) *Process {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = name
	return newProcess(name, cfg, logger.New(logger.Options{
		ServiceName: name,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	}))
}

func newProcess(name string, cfg *config.Config, logg *logger.Logger) *Process {
	return &Process{Name: name, Config: cfg, Logger: logg, exit: os.Exit}
}

// Must stops the process when err is set, closing what was opened so far.
func (p *Process) Must(resource string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	p.Close()
	p.exit(1)
}

// OnClose registers fn to run during Close.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Close runs the registered closers, newest first, and logs the failures.
func (p *Process) Close() {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	p.closers = nil
	if errs != nil {
		p.Logger.Error(context.Background(), "shutdown incomplete", errs)
	}
}

// Database opens the primary database and applies dev migrations when the
// config asks for them.
func (p *Process) Database() *db.Client {
	ctx := context.Background()
	client, err := db.New(ctx, p.Config.DB, p.Config.FeatureFlags.UseSQLite, p.Logger)
	p.Must("database", err)
	p.OnClose("database", client.Close)
	p.Must("dev migrations", migrate.MaybeRunDev(ctx, p.Config, p.Logger, client))
	return client
}

func (p *Process) Redis() *redis.Client {
	client, err := redis.New(context.Background(), p.Config.Redis, p.Logger)
	p.Must("redis", err)
	p.OnClose("redis", client.Close)
	return client
}

func (p *Process) PubSub() *pubsub.Client {
	client, err := pubsub.NewClient(context.Background(), p.Config.GCP, p.Config.PubSub, p.Logger)
	p.Must("pubsub", err)
	p.OnClose("pubsub", client.Close)
	return client
}

// Context returns a context canceled on SIGINT or SIGTERM and tagged with
// the process identity for logging.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.tag(ctx), stop
}

func (p *Process) tag(ctx context.Context) context.Context {
	return p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Name,
		"instance":    instance.GetID(),
	})
}

// Run serves /metrics and blocks in fn until it returns. Cancellation is a
// clean stop; any other error exits non-zero after resources are closed.
func (p *Process) Run(fn func(ctx context.Context) error) {
	ctx, stop := p.Context()
	defer stop()

	metrics.Serve(ctx, p.Config.App.MetricsAddr, prometheus.DefaultGatherer, p.Logger)
	p.Logger.Info(ctx, "starting "+p.Name)

	err := fn(ctx)
	p.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, p.Name+" stopped unexpectedly", err)
		p.exit(1)
		return
	}
	p.Logger.Info(ctx, p.Name+" shut down gracefully")
}
