package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/barsync/internal/collector"
	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/export"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/pool"
	"github.com/rickgao/barsync/internal/store"
	"github.com/rickgao/barsync/internal/stream"
)

// run dispatches one subcommand. The health server runs alongside it and
// is shut down when the command returns.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, name string, args []string) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var cmd func(context.Context, []string) error
	switch name {
	case "sync":
		cmd = a.syncCmd
	case "update":
		cmd = a.updateCmd
	case "replay":
		cmd = a.replayCmd
	case "export":
		cmd = a.exportCmd
	case "serve":
		cmd = a.serveCmd
	default:
		return fmt.Errorf("unknown command %q\n%s", name, usage)
	}

	g, gctx := errgroup.WithContext(ctx)
	cmdCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		return a.serveHealth(cmdCtx)
	})
	g.Go(func() error {
		defer stopServer()
		return cmd(cmdCtx, args)
	})
	return g.Wait()
}

func (a *app) syncCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	keys := fs.String("keys", "", "comma separated series keys, e.g. EUR_USD.M30,USD_JPY.H1")
	start := fs.String("start", "", "window start (RFC3339 or YYYY-MM-DD), required to paginate")
	end := fs.String("end", "", "window end (RFC3339 or YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, err := parseKeys(*keys)
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		return fmt.Errorf("%w: sync needs -keys", model.ErrConfig)
	}
	from, err := parseTime(*start)
	if err != nil {
		return err
	}
	to, err := parseTime(*end)
	if err != nil {
		return err
	}

	results, err := a.collector.SyncMany(ctx, parsed, from, to)
	return a.report("sync", results, err)
}

func (a *app) updateCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	keys := fs.String("keys", "", "comma separated series keys, empty = every stored series")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, err := parseKeys(*keys)
	if err != nil {
		return err
	}
	results, err := a.collector.UpdateMany(ctx, parsed...)
	return a.report("update", results, err)
}

func (a *app) report(op string, results []pool.Result, err error) error {
	if err != nil {
		return err
	}
	sum := collector.Summarize(results)
	a.logger.Info(op+" finished",
		"jobs", sum.Jobs,
		"failed", sum.Failed,
		"up_to_date", sum.UpToDate,
		"inserted", sum.Inserted,
		"deleted", sum.Deleted,
	)
	if sum.Failed > 0 {
		return fmt.Errorf("%s: %d of %d jobs failed", op, sum.Failed, sum.Jobs)
	}
	return nil
}

func (a *app) replayCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	key := fs.String("key", "", "series key to replay")
	start := fs.String("start", "", "inclusive start")
	end := fs.String("end", "", "inclusive end")
	mode := fs.String("mode", a.cfg.Stream.Mode, "materialized or lazy")
	sinkName := fs.String("sink", a.cfg.Stream.Sink, "stdout, ws or nats")
	interval := fs.Duration("interval", 0, "delay between bar events")
	waitClients := fs.Int("wait-clients", 0, "ws sink: wait for this many clients before streaming")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, err := model.ParseSeriesKey(*key)
	if err != nil {
		return err
	}
	m, err := stream.ParseMode(*mode)
	if err != nil {
		return err
	}
	from, err := parseTime(*start)
	if err != nil {
		return err
	}
	to, err := parseTime(*end)
	if err != nil {
		return err
	}

	sink, closeSink, err := a.openSink(ctx, *sinkName, k, *waitClients)
	if err != nil {
		return err
	}
	defer closeSink()

	c := stream.NewCursor(a.store, k, sink, stream.Config{Mode: m, Start: from, End: to}, a.logger, a.metrics)
	defer c.Close(context.Background())

	_, err = stream.Replay(ctx, c, *interval)
	return err
}

// openSink builds the named sink. The returned func releases it.
func (a *app) openSink(ctx context.Context, name string, key model.SeriesKey, waitClients int) (stream.Sink, func(), error) {
	switch name {
	case config.SinkStdout, "":
		return stream.NewWriterSink(os.Stdout), func() {}, nil

	case config.SinkWS:
		ws := stream.NewWSSink(stream.WSSinkConfig{}, a.logger)
		mux := http.NewServeMux()
		mux.Handle("/stream", ws)
		srv := &http.Server{Addr: a.cfg.Stream.WSAddr, Handler: mux}
		go func() {
			a.logger.Info("starting stream server", "addr", a.cfg.Stream.WSAddr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				a.logger.Error("stream server error", "error", err)
			}
		}()
		closeFn := func() {
			ws.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}

		for ws.Clients() < waitClients {
			select {
			case <-ctx.Done():
				closeFn()
				return nil, nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		return ws, closeFn, nil

	case config.SinkNATS:
		ns, err := stream.ConnectNATS(a.cfg.Stream.NATSURL, a.cfg.Stream.NATSSubject, key)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("publishing to nats", "subject", ns.Subject())
		return ns, func() { ns.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown stream sink %q", model.ErrConfig, name)
	}
}

func (a *app) exportCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	keys := fs.String("keys", "", "comma separated series keys, empty = every stored series")
	start := fs.String("start", "", "inclusive start")
	end := fs.String("end", "", "inclusive end")
	dir := fs.String("dir", a.cfg.Export.Dir, "output directory")
	format := fs.String("format", a.cfg.Export.Format, "parquet or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, err := parseKeys(*keys)
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		if parsed, err = store.Keys(ctx, a.store); err != nil {
			return err
		}
	}
	from, err := parseTime(*start)
	if err != nil {
		return err
	}
	to, err := parseTime(*end)
	if err != nil {
		return err
	}

	for _, k := range parsed {
		res, err := export.Series(ctx, a.store, k, store.Query{Start: from, End: to}, *dir, *format)
		if err != nil {
			return err
		}
		a.logger.Info("exported series", "key", k, "path", res.Path, "rows", res.Rows)
	}
	return nil
}

func (a *app) serveCmd(ctx context.Context, args []string) error {
	a.logger.Info("serving health and metrics until interrupted")
	<-ctx.Done()
	return nil
}

// parseKeys splits a comma separated key list. Empty input yields nil.
func parseKeys(s string) ([]model.SeriesKey, error) {
	var keys []model.SeriesKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := model.ParseSeriesKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// parseTime accepts RFC3339 or a bare date. Empty input yields nil.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid time %q (use RFC3339 or YYYY-MM-DD)", model.ErrConfig, s)
}
