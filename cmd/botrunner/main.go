// Command botrunner runs the bot job engine as a standalone service:
// a cron trigger drains the queue on a cadence, and an optional HTTP
// listener exposes on-demand runs, enqueueing, and queue stats.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	botjobs "github.com/tannerhat/botjobs"
	"github.com/tannerhat/botjobs/pkg/config"
	"github.com/tannerhat/botjobs/pkg/trigger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults used when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("botrunner exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	logger.Info("store ready", "driver", cfg.Store.Driver)

	reg := botjobs.NewRegistry()
	registerBuiltins(reg, logger)
	logger.Info("actions registered", "kinds", reg.Kinds())

	runner := newSwappableEngine(store, reg, cfg)
	runner.SetLogger(logger)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Trigger.Enabled {
		trig := trigger.New(runner, cfg.Trigger.Cron)
		trig.SetLogger(logger)
		logger.Info("cron trigger enabled", "cron", cfg.Trigger.Cron)
		g.Go(func() error {
			err := trig.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if cfg.HTTP.Enabled {
		app := newHTTPApp(runner, store, logger)
		logger.Info("http listener enabled", "addr", cfg.HTTP.Addr)
		g.Go(func() error {
			if err := app.Listen(cfg.HTTP.Addr); err != nil {
				return fmt.Errorf("http listen: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return app.ShutdownWithTimeout(10 * time.Second)
		})
	}

	if configPath != "" {
		g.Go(func() error {
			err := config.Watch(ctx, configPath, logger, func(next config.Config) {
				// Engine settings apply on the next run. Store, trigger
				// cadence, and listener changes need a restart.
				runner.Reconfigure(next)
				logger.Info("engine settings reloaded",
					"batch_limit", next.Engine.BatchLimit,
					"concurrency", next.Engine.Concurrency)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return g.Wait()
}

// openStore builds the configured Store implementation.
func openStore(cfg config.StoreConfig) (botjobs.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; a wider pool just queues on locks.
		return botjobs.NewGormStoreWithPool(db, botjobs.MaxOpenConns(1))
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return botjobs.NewGormStoreWithPool(db)
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			// Accept a bare host:port as well as a redis:// URL.
			opts = &redis.Options{Addr: cfg.RedisAddr}
		}
		return botjobs.NewRedisStore(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// registerBuiltins installs the utility actions every runner carries.
// Domain actions are registered by embedding the engine as a library.
func registerBuiltins(reg *botjobs.Registry, logger *slog.Logger) {
	reg.RegisterFunc("noop", func(ctx context.Context, _ []byte) error {
		return nil
	})

	type logArgs struct {
		Message string `json:"message"`
	}
	botjobs.Register(reg, "log", func(ctx context.Context, args logArgs) error {
		logger.Info("log action", "message", args.Message)
		return nil
	})

	type sleepArgs struct {
		DurationMS int `json:"duration_ms"`
	}
	botjobs.Register(reg, "sleep", func(ctx context.Context, args sleepArgs) error {
		select {
		case <-time.After(time.Duration(args.DurationMS) * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// swappableEngine lets a config reload replace the engine under the
// trigger and HTTP handlers without restarting either.
type swappableEngine struct {
	store  botjobs.Store
	reg    *botjobs.Registry
	logger *slog.Logger
	eng    atomic.Pointer[botjobs.Engine]
}

var _ trigger.Runner = (*swappableEngine)(nil)

func newSwappableEngine(store botjobs.Store, reg *botjobs.Registry, cfg config.Config) *swappableEngine {
	s := &swappableEngine{store: store, reg: reg}
	s.eng.Store(botjobs.NewEngine(store, reg, cfg.Engine.EngineOptions()...))
	return s
}

func (s *swappableEngine) SetLogger(logger *slog.Logger) {
	s.logger = logger
	s.eng.Load().SetLogger(logger)
}

func (s *swappableEngine) RunOnce(ctx context.Context) (botjobs.Result, error) {
	return s.eng.Load().RunOnce(ctx)
}

func (s *swappableEngine) Reconfigure(cfg config.Config) {
	eng := botjobs.NewEngine(s.store, s.reg, cfg.Engine.EngineOptions()...)
	if s.logger != nil {
		eng.SetLogger(s.logger)
	}
	s.eng.Store(eng)
}

// newHTTPApp builds the on-demand HTTP surface.
func newHTTPApp(runner *swappableEngine, store botjobs.Store, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "botrunner",
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Trigger a single processing run. Overlap with the cron trigger is
	// safe; claims are atomic.
	app.Post("/run", func(c *fiber.Ctx) error {
		result, err := runner.RunOnce(c.Context())
		if err != nil {
			logger.Error("on-demand run failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(result)
	})

	type enqueueRequest struct {
		Kind     string          `json:"kind"`
		Payload  json.RawMessage `json:"payload"`
		DelaySec int             `json:"delay_sec"`
	}
	app.Post("/jobs", func(c *fiber.Ctx) error {
		var req enqueueRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		var opts []botjobs.EnqueueOption
		if req.DelaySec > 0 {
			opts = append(opts, botjobs.Delay(time.Duration(req.DelaySec)*time.Second))
		}
		var payload any
		if len(req.Payload) > 0 {
			payload = req.Payload
		}
		id, err := botjobs.Enqueue(c.Context(), store, req.Kind, payload, opts...)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})

	app.Get("/jobs/:id", func(c *fiber.Ctx) error {
		job, err := store.GetJob(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if job == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
		}
		return c.JSON(job)
	})

	app.Get("/stats", func(c *fiber.Ctx) error {
		counts, err := store.CountByStatus(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(counts)
	})

	return app
}
