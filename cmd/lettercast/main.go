package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"lettercast/internal/automator"
	"lettercast/internal/browser"
	"lettercast/internal/collector"
	"lettercast/internal/config"
	"lettercast/internal/delivery"
	"lettercast/internal/fetcher"
	"lettercast/internal/filter"
	"lettercast/internal/gmailauth"
	"lettercast/internal/logging"
	"lettercast/internal/pipeline"
	"lettercast/internal/storage"
)

type options struct {
	config.Files
	Collect bool `long:"collect" description:"Collect and save new URLs only"`
	DryRun  bool `long:"dry-run" description:"Show what would be collected without writing anything"`
}

func main() {
	var opts options
	ok, err := config.ParseFlags(&opts, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if !ok {
		return
	}

	cfg, err := config.Load(opts.Config, opts.Env)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Dir); err != nil {
		slog.Error("setup logging", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, opts)
	cancel()

	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted")
	case err != nil:
		slog.Error("run failed", "error", err)
	}
	_ = logging.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	log := logging.For("main")
	for _, w := range cfg.Validate() {
		log.Warn("config warning", "warning", w)
	}

	store, err := openStore(cfg.Storage, opts.DryRun)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	collectors, marker := buildCollectors(ctx, cfg, log)

	var (
		gen    pipeline.Generator
		sender pipeline.Sender
	)
	if !opts.Collect && !opts.DryRun {
		gen = buildAutomator(cfg)
		tg, err := delivery.New(cfg.Telegram.BotToken, cfg.Telegram.ChannelID, cfg.Telegram.MaxRetries, logging.For("delivery"))
		if err != nil {
			return fmt.Errorf("connect telegram (check TELEGRAM_BOT_TOKEN and TELEGRAM_CHANNEL_ID): %w", err)
		}
		sender = tg
	}
	if !cfg.Gmail.MarkAsRead {
		marker = nil
	}

	p := pipeline.New(store, collectors, gen, sender, marker, pipeline.Options{
		CollectOnly: opts.Collect,
		DryRun:      opts.DryRun,
		SendSummary: cfg.Telegram.SendSummary,
		MaxAgeHours: cfg.Storage.MaxAgeHours,
	}, logging.For("pipeline"))

	_, err = p.Run(ctx)
	return err
}

// openStore prepares the data directories and opens the database. A dry run
// touches nothing on disk.
func openStore(sc config.StorageConfig, dryRun bool) (*storage.SQLite, error) {
	if dryRun {
		store, err := storage.OpenReadOnly(sc.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database %s read-only: %w", sc.DBPath, err)
		}
		return store, nil
	}

	for _, dir := range []string{filepath.Dir(sc.DBPath), sc.TempAudioDir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(sc.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", sc.DBPath, err)
	}
	return store, nil
}

// buildCollectors returns the configured sources. A Gmail setup failure is
// logged and only disables the Gmail source.
func buildCollectors(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]pipeline.Collector, pipeline.ReadMarker) {
	var (
		collectors []pipeline.Collector
		marker     pipeline.ReadMarker
	)

	if len(cfg.Gmail.AllowedSenders) > 0 {
		gc := cfg.Gmail
		rules, err := filter.NewRules(gc.ExcludeDomains, gc.IncludePatterns, gc.ExcludePatterns)
		if err != nil {
			log.Error("gmail disabled", "error", err)
		} else if svc, err := gmailauth.NewService(ctx, gc.CredentialsPath, gc.TokenPath); err != nil {
			log.Error("gmail disabled (run gmail-auth to authorize)", "error", err)
		} else {
			g := collector.NewGmail(
				collector.NewGmailAPI(svc),
				gc.AllowedSenders,
				gc.MaxResults,
				rules,
				logging.For("collector.gmail"),
			)
			collectors = append(collectors, g)
			marker = g
		}
	}

	if sites := cfg.TargetSites(); len(sites) > 0 {
		collectors = append(collectors, collector.NewWeb(
			sites,
			fetcher.New(http.DefaultClient),
			browser.NewRenderer("", 0),
			logging.For("collector.web"),
		))
	}
	return collectors, marker
}

func buildAutomator(cfg *config.Config) *automator.Automator {
	nb := cfg.NotebookLM
	launch := func(ctx context.Context) (automator.Driver, error) {
		s, err := browser.Start(ctx, browser.Options{
			UserDataDir: config.ExpandHome(nb.ChromeUserDataDir),
			Profile:     nb.ChromeProfile,
			Headless:    nb.Headless,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return automator.New(launch, automator.DefaultTiming(nb.Timeout()), nb.RetryCount, cfg.Storage.TempAudioDir, logging.For("automator"))
}
