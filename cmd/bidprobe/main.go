package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bidprobe/bidprobe/internal/config"
	"github.com/bidprobe/bidprobe/internal/dashboard"
	"github.com/bidprobe/bidprobe/internal/feeder"
	"github.com/bidprobe/bidprobe/internal/generator"
	"github.com/bidprobe/bidprobe/internal/httpclient"
	"github.com/bidprobe/bidprobe/internal/logbook"
	"github.com/bidprobe/bidprobe/internal/metrics"
	"github.com/bidprobe/bidprobe/internal/output"
	"github.com/bidprobe/bidprobe/internal/runner"
	"github.com/bidprobe/bidprobe/internal/snippet"
	"github.com/bidprobe/bidprobe/internal/threshold"
	"github.com/bidprobe/bidprobe/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Parse thresholds up front so a typo fails before any traffic is sent.
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracer, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("trace exporter shutdown failed", zap.Error(err))
		}
	}()

	var userIDs feeder.Feeder
	if cfg.UserIDsFile != "" {
		lf, err := feeder.NewLineFeeder(cfg.UserIDsFile)
		if err != nil {
			return err
		}
		defer lf.Close()
		userIDs = lf
		logger.Debug("user id pool loaded", zap.String("file", cfg.UserIDsFile), zap.Int("ids", lf.Len()))
	}

	gen := generator.New(generator.Options{
		VideoProportion:  cfg.VideoProportion,
		MobileProportion: cfg.MobileProportion,
		UserIDs:          userIDs,
		Seed:             cfg.Seed,
	})

	book, err := logbook.Open(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := book.Close(); err != nil {
			logger.Warn("output close failed", zap.Error(err))
		}
	}()

	client := httpclient.NewClient(cfg.Timeout)
	sender, err := httpclient.NewSender(client, cfg.TargetURL, cfg.Headers)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()

	requester := &probe{
		gen:       gen,
		sender:    sender,
		renderer:  snippet.NewRenderer(cfg.EncryptedPrice),
		collector: collector,
		book:      book,
		tracer:    tracer.Tracer(),
		propagate: tracer.ShouldPropagate(),
		logger:    logger,
	}

	r := runner.New(runner.Options{
		MaxInFlight:   cfg.MaxInFlight,
		TotalRequests: cfg.Requests,
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		Requester:     requester,
		RandomSeed:    cfg.Seed,
	})

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunConfig{
			TargetURL:    cfg.TargetURL,
			MaxInFlight:  cfg.MaxInFlight,
			Duration:     cfg.Duration,
			Total:        cfg.Requests,
			Rate:         cfg.Rate,
			Timeout:      cfg.Timeout,
			ArrivalModel: string(cfg.Arrival.Model),
			ConfigFile:   cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, progressInterval, os.Stdout)
		progress.Start()
	}

	logger.Info("probe starting",
		zap.String("target", cfg.TargetURL),
		zap.Int("rate", cfg.Rate),
		zap.Int("requests", cfg.Requests),
		zap.Duration("duration", cfg.Duration),
		zap.String("arrival", string(cfg.Arrival.Model)),
	)

	result := r.Run(ctx)
	stats := collector.Stats(result.Duration)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, stats); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, stats)
		fmt.Fprintf(os.Stdout, "\nCategory logs written to %s (%d snippets rendered)\n", cfg.OutputDir, book.Rendered())
	}

	return checkThresholds(thresholds, stats, cfg.JSONOutput)
}

// checkThresholds evaluates outcome assertions against the final stats
// and returns an error when any fail.
func checkThresholds(thresholds []threshold.Threshold, stats metrics.Stats, jsonOutput bool) error {
	if len(thresholds) == 0 {
		return nil
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	failed := 0
	for _, res := range results {
		if !res.Pass {
			failed++
		}
		if !jsonOutput {
			fmt.Fprintln(os.Stdout, res.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	return nil
}

// newLogger builds a stderr logger at the configured level, keeping
// stdout free for progress lines and the final report.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "", "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("log-level %q is not supported", level)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
