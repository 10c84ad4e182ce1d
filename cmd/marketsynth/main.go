// marketsynth replays a historical market data journal through the
// synthesis engine and writes the resulting synthetic order log.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/halcyontrade/marketsynth/internal/replay"
	"github.com/halcyontrade/marketsynth/pkg/logger"
	"github.com/halcyontrade/marketsynth/pkg/metrics"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	pflag.StringP("input", "i", "", "historical journal to replay (overrides config)")
	pflag.StringP("output", "o", "", "synthetic log destination (overrides config)")
	pflag.Parse()

	cfg, err := LoadConfig(*configPath, pflag.CommandLine)
	if err != nil {
		zap.NewExample().Fatal("configuration error", zap.Error(err))
	}

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("logger init failed", zap.Error(err))
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("replay failed", zap.Error(err))
	}
}

func run(cfg *Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := replay.OpenJournal(cfg.Input)
	if err != nil {
		return err
	}
	defer journal.Close()

	messages, err := journal.ReadAll()
	if err != nil {
		return err
	}

	out, err := replay.NewLogWriter(cfg.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	runner := replay.NewRunner(cfg.Emulation.Settings(), cfg.Seed, cfg.FailFast, log)
	if err := runner.Run(ctx, messages, out); err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return err
	}
	logCounters(log)
	return nil
}

// logCounters dumps the run's prometheus counters; a batch replay is
// gone before anything could scrape them.
func logCounters(log *zap.Logger) {
	totals, err := metrics.Snapshot()
	if err != nil {
		log.Warn("gather metrics", zap.Error(err))
		return
	}
	fields := make([]zap.Field, 0, len(totals))
	for name, total := range totals {
		fields = append(fields, zap.Float64(name, total))
	}
	log.Info("replay counters", fields...)
}
