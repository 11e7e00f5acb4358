// Command debugparse renders a single search page with the production browser
// stack, runs the matching extraction rule and prints what it found. With
// -file it parses saved markup (for example a debug_<host>.html dump)
// instead of opening a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"imobot/config"
	"imobot/models"
	"imobot/scraper"
	"imobot/scraper/extract"
	"imobot/services"
	"imobot/utils"
)

func main() {
	file := flag.String("file", "", "Parse saved markup instead of rendering the URL")
	dump := flag.String("dump", "debug_output.html", "Where to write the markup when nothing is extracted (empty disables)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-file page.html] <url>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	targetURL := flag.Arg(0)

	logger := utils.NewLogger()
	cfg := config.Load()
	if err := logger.Configure(cfg.LogLevel, ""); err != nil {
		logger.Error("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	markup, err := loadMarkup(ctx, cfg, logger, *file, targetURL)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	ex := extract.DefaultRegistry().Resolve(targetURL)
	logger.Info("[debugparse] Using %s (markup length %d)", ex.Name(), len(markup))

	records, err := ex.Extract(markup, targetURL)
	if err != nil {
		logger.Error("[debugparse] %v", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		if scraper.IsBlocked(markup) {
			logger.Warn("[debugparse] Page carries a block/captcha marker")
		}
		if *dump != "" && *file == "" {
			if err := os.WriteFile(*dump, []byte(markup), 0644); err != nil {
				logger.Error("[debugparse] dump: %v", err)
			} else {
				logger.Warn("[debugparse] No results found. Markup written to %s", *dump)
			}
		}
	}

	services.PrintListings(os.Stdout, ex.Name(), records, cfg.MinPrice)
}

func loadMarkup(ctx context.Context, cfg *config.Config, logger *utils.Logger, file, targetURL string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	}

	profiles, err := config.LoadSiteProfiles(cfg.SitesFile)
	if err != nil {
		return "", err
	}
	opts := scraper.DefaultBrowserOptions()
	opts.WSEndpoint = cfg.BrowserWSEndpoint
	opts.ChromeBin = cfg.ChromeBin
	opts.NavTimeout = cfg.NavTimeout
	opts.Profiles = profiles

	browser := scraper.NewSessionManager(ctx, opts, logger)
	defer browser.Shutdown()

	return browser.Render(ctx, models.Target{URL: targetURL, Total: 1})
}
