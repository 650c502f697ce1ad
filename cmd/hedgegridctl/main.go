// Command hedgegridctl is the reference host for the hedge-mode grid
// engine core: it wires a Controller to a paper trading adapter for
// local demonstration and manual smoke-testing, the way the teacher's
// cmd/live_server wires its engine to a real exchange connector.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hedgegrid/core/internal/config"
	"github.com/hedgegrid/core/internal/controller"
	"github.com/hedgegrid/core/internal/diff"
	"github.com/hedgegrid/core/internal/exit"
	"github.com/hedgegrid/core/internal/funding"
	"github.com/hedgegrid/core/internal/grid"
	"github.com/hedgegrid/core/internal/logging"
	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/policy"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/hedgegrid/core/internal/regime"
	"github.com/hedgegrid/core/internal/retry"
	"github.com/hedgegrid/core/internal/risk"
	"github.com/hedgegrid/core/internal/state"
	"github.com/hedgegrid/core/internal/telemetry"
	"github.com/hedgegrid/core/pkg/clock"
	"github.com/hedgegrid/core/pkg/concurrency"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/hedgegrid.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hedgegridctl version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Getenv("HEDGEGRID_LOG_LEVEL")).
		WithField("instrument", cfg.Instrument).WithField("strategy", cfg.Strategy)

	if cfg.Telemetry.EnableMetrics {
		if err := telemetry.InitGlobal(); err != nil {
			logger.Warn("failed to initialize metrics exporter", "error", err.Error())
		}
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name: "hedgegridctl-dispatch", MaxWorkers: 8, MaxCapacity: 256,
	}, logger)
	defer pool.Stop()

	paper := newPaperVenue(cfg.Instrument)
	stateStore := state.New(cfg.StatePath).ForInstrument(cfg.Instrument, logger)
	guard := precision.New(paper.precision)

	ctrl := controller.New(
		logger, clock.Real{}, paper, paper, stateStore, guard,
		cfg.Strategy, cfg.Instrument, pool, buildControllerConfig(cfg),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		logger.Error("failed to start controller", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("hedgegridctl is running", "version", version)

	go func() {
		if err := paper.SubscribeMarkPrice(ctx, ctrl.OnMarkPrice); err != nil {
			logger.Warn("mark price feed stopped", "error", err.Error())
		}
	}()
	go func() {
		err := paper.SubscribeBars(ctx, func(bar model.Bar) {
			if err := ctrl.OnBar(ctx, bar); err != nil {
				logger.Warn("bar processing error", "error", err.Error())
			}
		})
		if err != nil {
			logger.Warn("bar feed stopped", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	logger.Info("received shutdown signal, persisting state and exiting")

	cancel()
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer persistCancel()
	if err := ctrl.Persist(persistCtx); err != nil {
		logger.Error("failed to persist strategy state", "error", err.Error())
	}
}

// buildControllerConfig maps the YAML config's `§6 Config keys consumed`
// grouping onto the Controller's sub-component configs.
func buildControllerConfig(cfg *config.Config) controller.Config {
	return controller.Config{
		Grid: grid.Config{
			GridStepBps: cfg.Grid.GridStepBps, NRungs: cfg.Grid.NRungs,
			BaseQty: cfg.Grid.BaseQty, RecenterThresholdBps: cfg.Grid.RecenterThresholdBps,
			UpBias: cfg.Grid.UpBias, DownBias: cfg.Grid.DownBias, SideBias: cfg.Grid.SideBias,
		},
		Regime: regime.Config{
			EmaFast: cfg.Regime.EmaFast, EmaSlow: cfg.Regime.EmaSlow,
			AdxLen: cfg.Regime.AdxLen, AtrLen: cfg.Regime.AtrLen,
			HysteresisBps: cfg.Regime.HysteresisBps, TrendingADX: cfg.Regime.TrendingADX,
		},
		Policy: policy.Config{
			LongKeepLevels: cfg.Policy.LongKeepLevels, ShortKeepLevels: cfg.Policy.ShortKeepLevels,
		},
		Funding: funding.Config{
			FundingWindowMinutes: cfg.Funding.FundingWindowMinutes,
			FundingMaxCostBps:    cfg.Funding.FundingMaxCostBps,
		},
		Diff: diff.Config{
			PriceToleranceBps: cfg.Execution.OrderDiffPriceToleranceBps,
			QtyTolerancePct:   cfg.Execution.OrderDiffQtyTolerancePct,
		},
		Retry: retry.Config{
			Enabled: cfg.Execution.UsePostOnlyRetries, MaxAttempts: cfg.Execution.RetryAttempts,
			DelayMillis: cfg.Execution.RetryDelayMs,
		},
		Exit: exit.Config{
			TPSteps: cfg.Exit.TPSteps, SLSteps: cfg.Exit.SLSteps,
			GridStepBps: cfg.Grid.GridStepBps,
		},
		Risk: risk.Config{
			MaxDrawdownPct: cfg.Risk.MaxDrawdownPct, MaxErrorsPerMinute: cfg.Risk.MaxErrorsPerMinute,
			CircuitBreakerWindowSeconds: cfg.Risk.CircuitBreakerWindowSeconds,
			CircuitBreakerCooldownSeconds: cfg.Risk.CircuitBreakerCooldownSeconds,
			EnableDrawdownProtection: cfg.Risk.EnableDrawdownProtection,
			EnableCircuitBreaker:     cfg.Risk.EnableCircuitBreaker,
			MaxPositionPct:           cfg.Position.MaxPositionPct,
		},
		MaxBarStaleness:  time.Duration(cfg.Execution.MaxBarStalenessSeconds) * time.Second,
		OptimizationMode: cfg.Execution.OptimizationMode,
	}
}

// rng backs the paper venue's synthetic price walk; seeded once at
// process start since the core itself never calls math/rand.
var rng = rand.New(rand.NewSource(time.Now().UnixNano()))
