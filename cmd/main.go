package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/regflow/internal/adapters/http/api"
	"github.com/okian/regflow/internal/adapters/notify"
	"github.com/okian/regflow/internal/adapters/repository"
	service "github.com/okian/regflow/internal/app"
	"github.com/okian/regflow/internal/config"
	"github.com/okian/regflow/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without process exit, for tests.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("regflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "path to the YAML configuration (default $"+config.EnvConfig+")")
	once := fs.Bool("once", false, "run once even when a schedule is configured")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx, *cfgPath)
	if err != nil {
		// logger isn't configured yet
		fmt.Fprintln(stderr, "failed to load config:", err)
		return exitFailure
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(stderr)); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts := []service.Option{
		service.WithConfig(cfg),
		service.WithLogger(logger.Named("service")),
	}

	var store repository.Store
	if cfg.Sink.Driver != "" {
		s, err := repository.Open(ctx, cfg.Sink.Driver, cfg.Sink.DSN, repository.WithLabelPrefix(cfg.Workflow.LabelPrefix))
		if err != nil {
			log.Error(ctx, "failed to open result sink", logger.String("driver", cfg.Sink.Driver), logger.Error(err))
			return exitFailure
		}
		defer func() {
			if err := s.Close(); err != nil {
				log.Warn(ctx, "closing result sink failed", logger.Error(err))
			}
		}()
		store = s
		opts = append(opts, service.WithStore(s))
	}

	if cfg.Slack.Enabled() {
		var nopts []notify.Option
		if cfg.Slack.APIURL != "" {
			nopts = append(nopts, notify.WithAPIURL(cfg.Slack.APIURL))
		}
		n, err := notify.NewSlack(cfg.Slack.Token, cfg.Slack.Channel, nopts...)
		if err != nil {
			log.Error(ctx, "failed to configure notifications", logger.Error(err))
			return exitFailure
		}
		opts = append(opts, service.WithNotifier(n))
	}

	svc := service.New(opts...)

	if *once || cfg.Schedule == "" {
		if _, err := svc.Run(ctx); err != nil {
			log.Error(ctx, "run failed", logger.Error(err))
			return exitFailure
		}
		return exitOK
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.RunScheduled(gctx, cfg.Schedule) })
	if cfg.Addr != "" {
		var runs api.RunLookup
		if store != nil {
			runs = store
		}
		srv := api.NewServer(svc, runs)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Addr) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "scheduler stopped with error", logger.Error(err))
		return exitFailure
	}
	return exitOK
}
