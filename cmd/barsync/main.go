// Command barsync syncs provider bars into a store and replays them as
// event streams.
//
// Usage:
//
//	barsync [-config path] <command> [flags]
//
// Commands:
//
//	sync    fetch a window for one or more series
//	update  bring stored series up to date (all when -keys is empty)
//	replay  stream one stored series to the configured sink
//	export  write stored series to parquet or json files
//	serve   run the health and metrics server only
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/logging"
	"github.com/rickgao/barsync/internal/version"
)

const usage = `usage: barsync [-config path] <sync|update|replay|export|serve> [flags]`

// openLogger is swapped in tests.
var openLogger = logging.New

func main() {
	os.Exit(realMain(os.Args[1:], os.Stderr))
}

// realMain runs barsync and returns the process exit code. Deferred cleanup
// runs before the caller exits.
func realMain(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("barsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "configs/barsync.yaml", "path to config file, empty for built-in defaults")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, closer, err := openLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "failed to set up logging: %v\n", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting barsync",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"command", fs.Arg(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg, logger, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("barsync interrupted")
			return 130
		}
		logger.Error("barsync failed", "error", err)
		return 1
	}
	logger.Info("barsync stopped")
	return 0
}
