package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/oneweather/oneweather/internal/api"
	"github.com/oneweather/oneweather/internal/blend"
	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/eval"
	"github.com/oneweather/oneweather/internal/geo"
	"github.com/oneweather/oneweather/internal/runner"
	"github.com/oneweather/oneweather/internal/store"
)

type cli struct {
	DB         string `help:"Path to SQLite database." default:"data/oneweather.db" env:"ONEWEATHER_DB"`
	Addr       string `help:"HTTP listen address." default:":8080" env:"ONEWEATHER_ADDR"`
	Resolution int    `help:"H3 cell resolution." default:"6" env:"ONEWEATHER_RESOLUTION"`
	Workers    int    `help:"Worker pool size (0 = number of CPUs)." default:"0" env:"ONEWEATHER_WORKERS"`
	LogJSON    bool   `help:"Emit JSON logs." env:"ONEWEATHER_LOG_JSON"`

	Serve    serveCmd    `cmd:"" help:"Run the API server with scheduled recomputation."`
	Evaluate evaluateCmd `cmd:"" help:"Recompute performance profiles once and exit."`
	Blend    blendCmd    `cmd:"" help:"Recompute blended forecasts once and exit."`
	Sweep    sweepCmd    `cmd:"" help:"Delete data past the retention horizon and exit."`
}

// app holds everything a command needs, built once after flag parsing.
type app struct {
	ctx    context.Context
	cfg    config.Config
	store  *store.Store
	idx    *geo.Index
	runner *runner.Runner
	server *api.Server
	logger *slog.Logger
}

type serveCmd struct {
	RecomputeEvery time.Duration `help:"Interval between profile/blend recomputation." default:"1h"`
	SweepEvery     time.Duration `help:"Interval between retention sweeps." default:"24h"`
	NoSchedule     bool          `help:"Serve only; disable scheduled jobs."`
}

func (c *serveCmd) Run(a *app) error {
	if !c.NoSchedule {
		go func() {
			if err := a.runner.Start(a.ctx, c.RecomputeEvery, c.SweepEvery); err != nil {
				a.logger.Error("scheduler stopped", "error", err)
			}
		}()
	} else {
		a.logger.Info("scheduled jobs disabled")
	}
	return a.server.Run(a.ctx)
}

type evaluateCmd struct{}

func (evaluateCmd) Run(a *app) error {
	stats, err := a.runner.EvaluateAll(a.ctx)
	if err != nil {
		return err
	}
	a.logger.Info("evaluation complete",
		"completed", stats.Completed, "skipped", stats.Skipped, "failed", stats.Failed)
	return nil
}

type blendCmd struct{}

func (blendCmd) Run(a *app) error {
	stats, err := a.runner.BlendAll(a.ctx)
	if err != nil {
		return err
	}
	a.logger.Info("blending complete",
		"completed", stats.Completed, "skipped", stats.Skipped, "failed", stats.Failed)
	return nil
}

type sweepCmd struct{}

func (sweepCmd) Run(a *app) error {
	return a.runner.Sweep(a.ctx)
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("oneweather"),
		kong.Description("Forecast accuracy evaluation and blending service."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger := newLogger(flags.LogJSON)

	cfg := config.Default()
	cfg.CellResolution = flags.Resolution
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(flags.DB, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clock := clockwork.NewRealClock()
	idx := geo.NewIndex(cfg.CellResolution)
	evalEngine := eval.New(st, cfg, clock, logger)
	blendEngine := blend.New(st, cfg, clock, logger)

	run := runner.New(st, evalEngine, blendEngine, cfg, clock, logger)
	run.SetWorkers(flags.Workers)

	a := &app{
		ctx:    ctx,
		cfg:    cfg,
		store:  st,
		idx:    idx,
		runner: run,
		server: api.NewServer(st, idx, flags.Addr, logger),
		logger: logger,
	}

	if err := kctx.Run(a); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(jsonOut bool) *slog.Logger {
	var handler slog.Handler
	if jsonOut {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
