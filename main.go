package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imobot/api"
	"imobot/config"
	"imobot/models"
	"imobot/scraper"
	"imobot/scraper/extract"
	"imobot/services"
	"imobot/storage"
	"imobot/utils"
)

const (
	storeStartupAttempts = 10
	storeStartupBackoff  = 5 * time.Second
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		logger.Error("%v", err)
	}
	defer logger.Close()

	logger.Info("=== Property monitor starting ===")
	logger.Info("Config: concurrency: %d | min price: %d | interval: %v | retries: %d | store: %s",
		cfg.ConcurrencyLimit, cfg.MinPrice, cfg.ScrapeInterval, cfg.MaxRetries, cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := waitForStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Could not connect to the database: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Database connected")

	profiles, err := config.LoadSiteProfiles(cfg.SitesFile)
	if err != nil {
		logger.Error("Failed to load site profiles: %v", err)
		os.Exit(1)
	}

	opts := scraper.DefaultBrowserOptions()
	opts.WSEndpoint = cfg.BrowserWSEndpoint
	opts.ChromeBin = cfg.ChromeBin
	opts.NavTimeout = cfg.NavTimeout
	opts.Profiles = profiles
	browser := scraper.NewSessionManager(ctx, opts, logger)
	defer browser.Shutdown()

	notifier := services.NewNotifier(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID, logger)
	if !cfg.NotificationsEnabled() {
		logger.Warn("TELEGRAM_TOKEN or CHAT_ID not set, notifications are disabled")
	}

	pipeline := services.NewPipeline(store, notifier, cfg.MinPrice, logger)
	policy := scraper.RetryPolicy{MaxAttempts: cfg.MaxRetries, Delay: cfg.RetryDelay}
	fetcher := scraper.NewFetcher(browser, extract.DefaultRegistry(), pipeline, policy, logger)
	fetcher.DumpDir = cfg.DumpDir
	workers := scraper.NewScheduler(fetcher, cfg.ConcurrencyLimit, cfg.StartJitter, logger)

	trigger := services.NewFileTrigger(cfg.TriggerFile)
	cycleOpts := services.CycleOptions{
		Targets:  func() ([]models.Target, error) { return config.LoadTargets(cfg.LinksFile) },
		Runner:   workers,
		Pipeline: pipeline,
		Browser:  browser,
		Trigger:  trigger,
		Interval: cfg.ScrapeInterval,
	}

	if cfg.ReportCSVPath != "" {
		report, err := storage.NewCSVWriter(cfg.ReportCSVPath)
		if err != nil {
			logger.Error("Failed to open cycle report: %v", err)
			os.Exit(1)
		}
		defer report.Close()
		cycleOpts.Report = report
		logger.Info("Cycle reports appended to %s", cfg.ReportCSVPath)
	}

	cycles := services.NewCycleScheduler(cycleOpts, logger)

	if cfg.ControlAddr != "" {
		creds := api.Credentials{User: cfg.ControlUser, Password: cfg.ControlPassword}
		srv := api.NewServer(store, trigger, cycles, creds, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.ControlAddr); err != nil {
				logger.Error("Control API stopped: %v", err)
			}
		}()
	}

	cycles.Run(ctx)
	logger.Info("Shutting down")
}

// waitForStore connects to the configured store, retrying with a fixed
// backoff while the database comes up.
func waitForStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.ListingStore, error) {
	// A misspelt backend will not fix itself; fail before the retry loop.
	if err := storage.CheckBackend(cfg.StoreBackend); err != nil {
		return nil, err
	}
	logger.Info("Waiting for the database to be ready...")

	retry := utils.RetryConfig{
		MaxAttempts: storeStartupAttempts,
		BaseDelay:   storeStartupBackoff,
		Logger:      logger,
	}

	var store storage.ListingStore
	err := retry.Do(ctx, "database connect", func(ctx context.Context) error {
		s, err := storage.Open(ctx, storage.Options{
			Backend:  cfg.StoreBackend,
			DBDriver: cfg.DBDriver,
			DSN:      cfg.DatabaseURL,
			MongoURI: cfg.MongoURI,
			MongoDB:  cfg.MongoDB,
		})
		if err != nil {
			return err
		}
		store = s
		return nil
	})
	return store, err
}
