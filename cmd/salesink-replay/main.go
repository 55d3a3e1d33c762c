// Package main implements salesink-replay, a developer tool that runs the
// salesink handler in-process against a saved MSK event or a live topic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/salesink/salesink/internal/config"
	"github.com/salesink/salesink/internal/decoder"
	"github.com/salesink/salesink/internal/handler"
	"github.com/salesink/salesink/internal/logging"
	"github.com/salesink/salesink/internal/persist"
	"github.com/salesink/salesink/internal/replay"
	"github.com/salesink/salesink/internal/shutdown"
	"github.com/salesink/salesink/internal/storage"
)

type options struct {
	configPath string
	envFile    string
	eventPath  string
	fromKafka  bool
	dryRun     bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "salesink-replay: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored if missing)")
	flag.StringVar(&opts.eventPath, "event", "", "Path to an MSK event JSON document")
	flag.BoolVar(&opts.fromKafka, "kafka", false, "Fetch one batch from the configured Kafka topic")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Decode only and print records as JSON lines")
	flag.Parse()
	return opts
}

func run() error {
	opts := parseFlags()
	if (opts.eventPath == "") == !opts.fromKafka {
		return errors.New("exactly one of -event or -kafka is required")
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.fromKafka {
		if err := cfg.ValidateReplay(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	sm := shutdown.New(5*time.Second, logger)
	sm.RegisterCloser(shutdown.CloserFunc(func() error {
		_ = logger.Sync()
		return nil
	}))
	defer sm.Shutdown(context.Background(), "replay finished") //nolint:errcheck

	ctx, stop := sm.NotifyContext(context.Background())
	defer stop()

	dec := decoder.New(logger)

	if opts.fromKafka {
		reader := replay.NewReader(cfg.Replay)
		sm.RegisterCloser(reader)

		if opts.dryRun {
			msgs, err := replay.Fetch(ctx, reader, cfg.Replay.MaxMessages, cfg.Replay.Timeout)
			if err != nil {
				return err
			}
			_, err = replay.DryRunEvent(os.Stdout, replay.BuildEvent(msgs, cfg.Replay.Brokers), dec)
			return err
		}

		runner, err := newRunner(ctx, cfg, dec, logger)
		if err != nil {
			return err
		}
		n, err := runner.RunKafka(ctx, reader, cfg.Replay)
		if err != nil {
			return err
		}
		logger.Info("Replay complete", zap.Int("messages", n))
		return nil
	}

	payload, err := replay.LoadEventFile(opts.eventPath)
	if err != nil {
		return err
	}
	if opts.dryRun {
		_, err := replay.DryRun(os.Stdout, payload, dec)
		return err
	}

	runner, err := newRunner(ctx, cfg, dec, logger)
	if err != nil {
		return err
	}
	return runner.RunPayload(ctx, payload)
}

func newRunner(ctx context.Context, cfg *config.Config, dec *decoder.Decoder, logger *zap.Logger) (*replay.Runner, error) {
	client, err := storage.NewClient(ctx, cfg.Store.Table, storage.DynamoDBConfig{
		Region:   cfg.Store.Region,
		Endpoint: cfg.Store.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	p := persist.New(client, storage.WriterConfig{
		FlushSize:      cfg.Store.FlushSize,
		MaxFlushRounds: cfg.Store.MaxFlushRounds,
	}, logger)
	return replay.NewRunner(handler.New(dec, p, logger), logger), nil
}
