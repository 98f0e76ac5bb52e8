package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crimson-sun/sentinel/internal/analyze"
	"github.com/crimson-sun/sentinel/internal/config"
	"github.com/crimson-sun/sentinel/internal/feed"
	flagging "github.com/crimson-sun/sentinel/internal/flag"
	"github.com/crimson-sun/sentinel/internal/logging"
	"github.com/crimson-sun/sentinel/internal/poller"
	"github.com/crimson-sun/sentinel/internal/queue"
	"github.com/crimson-sun/sentinel/internal/sink"
	"github.com/crimson-sun/sentinel/internal/store"
	"github.com/crimson-sun/sentinel/internal/web"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		once        = flag.Bool("once", false, "run a single poll cycle and exit")
		printWarns  = flag.Bool("print-warnings", false, "write accepted warnings to stdout as NDJSON")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sentineld %s\n", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentineld: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg, *once, *printWarns); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, once, printWarnings bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	engineOpts := []flagging.Option{
		flagging.WithLargePushThreshold(cfg.Flagging.LargePushThreshold),
	}
	if !cfg.Flagging.DummyWarnings {
		engineOpts = append(engineOpts, flagging.WithSamplingDivisor(0))
	}
	engine := flagging.New(engineOpts...)

	fetcher := feed.NewFetcher(cfg.Feed.Token,
		feed.WithBackoff(cfg.Feed.BackoffBase, cfg.Feed.BackoffMax))
	walker := feed.NewWalker(fetcher, engine)

	log := queue.NewLog(cfg.Queue.Capacity)

	var sinks []sink.Sink
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, sink.NewWebhook(cfg.Webhook.URL))
	}
	if printWarnings {
		sinks = append(sinks, sink.NewStdout())
	}

	pollerOpts := []poller.Option{
		poller.WithFallbackInterval(cfg.Feed.FallbackInterval),
	}
	if len(sinks) > 0 {
		pollerOpts = append(pollerOpts, poller.WithSink(sink.NewMulti(sinks...)))
	}
	p := poller.New(walker, db, log, cfg.Feed.URL, pollerOpts...)

	if once {
		_, err := p.RunOnce(ctx)
		return err
	}

	var analyzer analyze.Analyzer
	if cfg.Analysis.OpenAIAPIKey != "" {
		analyzer = analyze.NewOpenAI(cfg.Analysis.OpenAIAPIKey,
			analyze.WithModel(cfg.Analysis.Model))
	} else {
		slog.Warn("no OpenAI API key configured, streaming placeholder analyses")
		analyzer = analyze.Static{}
	}

	api := web.NewServer(log, db, analyzer,
		web.WithStreamTick(cfg.Server.StreamTick),
		web.WithAllowOrigins(cfg.Server.AllowOrigins))
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Addr, "version", Version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		slog.Info("poller starting", "feed", cfg.Feed.URL)
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("poller: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
