// X Campaign Automation - Main Application
// This is a proof-of-concept demonstrating browser automation techniques.
// FOR EDUCATIONAL PURPOSES ONLY - Do not use on production X accounts.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/so032019/browser-automation/auth"
	"github.com/so032019/browser-automation/browser"
	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/delay"
	"github.com/so032019/browser-automation/engagement"
	"github.com/so032019/browser-automation/filler"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/notify"
	"github.com/so032019/browser-automation/orchestrator"
	"github.com/so032019/browser-automation/search"
	"github.com/so032019/browser-automation/selectors"
	"github.com/so032019/browser-automation/stealth"
	"github.com/so032019/browser-automation/storage"
)

// Application holds all components of the automation tool
type Application struct {
	config    *config.Config
	logger    *logger.Logger
	browser   *browser.Browser
	registry  *selectors.Registry
	db        *storage.Database
	delays    *delay.Manager
	humanizer *stealth.Humanizer
	auth      *auth.Manager
	searcher  *search.Searcher
	orch      *orchestrator.Orchestrator
	notifier  *notify.Notifier
}

// Command line flags
var (
	configPath    = flag.String("config", "config.yaml", "Path to configuration file")
	selectorsPath = flag.String("selectors", "selectors.yaml", "Path to selector overrides")
	mode          = flag.String("mode", "run", "Run mode: run, search, interactive")
	maxPosts      = flag.Int("max-posts", 0, "Maximum posts to process (0 = from config)")
	headless      = flag.Bool("headless", true, "Run the browser headless")
	dryRun        = flag.Bool("dry-run", false, "Dry run mode - collect posts but perform no actions")
	skipNotify    = flag.Bool("skip-notify", false, "Skip the Slack session summary")
	verbose       = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	printBanner()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		fmt.Println("\nPlease ensure you have set X_USERNAME and X_PASSWORD environment variables")
		fmt.Println("or create a .env file with these values.")
		os.Exit(1)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Browser.Headless = *headless
	if *maxPosts > 0 {
		cfg.Search.MaxPostsPerSession = *maxPosts
	}
	if *skipNotify {
		cfg.Notify.Enabled = false
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.OutputFile,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("X campaign automation starting...")
	log.Infof("Mode: %s", *mode)

	app, err := NewApplication(cfg, log)
	if err != nil {
		log.Errorf("Failed to initialize application: %v", err)
		os.Exit(1)
	}

	setupGracefulShutdown(app)

	if err := app.Run(); err != nil {
		log.Errorf("Application error: %v", err)
		app.Close()
		os.Exit(1)
	}

	app.Close()
	log.Info("Application completed successfully")
}

// NewApplication creates and initializes a new application instance
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	db, err := storage.NewDatabase(cfg.Storage.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry, err := selectors.LoadFile(*selectorsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load selectors: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("selector registry invalid: %w", err)
	}

	return &Application{
		config:   cfg,
		logger:   log,
		registry: registry,
		db:       db,
		browser:  browser.NewBrowser(cfg, log),
		delays:   delay.NewManager(&cfg.Delays, log),
		notifier: notify.NewNotifier(&cfg.Notify, log),
	}, nil
}

// Run launches the browser, authenticates and executes the selected mode.
func (app *Application) Run() error {
	if err := app.browser.Launch(); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	// The driver only exists after launch; wire the page-level components now
	driver := app.browser.Driver()
	app.humanizer = stealth.NewHumanizer(driver, &app.config.Stealth, app.logger)
	app.auth = auth.NewManager(driver, app.registry, app.humanizer, app.delays, &app.config.Account, app.logger)
	app.searcher = search.NewSearcher(driver, app.registry, app.humanizer, app.delays, &app.config.Search, app.logger)

	prober := engagement.NewProber(driver, app.registry, app.logger)
	executor := engagement.NewExecutor(driver, app.registry, app.humanizer, app.delays, app.logger)
	fillerExec := filler.NewExecutor(driver, app.registry, app.humanizer, app.delays, &app.config.Filler, app.logger)
	app.orch = orchestrator.New(driver, prober, executor, fillerExec, app.delays, &app.config.Filler, app.logger)

	if err := app.authenticate(); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	switch *mode {
	case "run":
		return app.runSession()
	case "search":
		return app.runSearchOnly()
	case "interactive":
		return app.runInteractive()
	default:
		return fmt.Errorf("unknown mode: %s", *mode)
	}
}

// authenticate restores the stored session when possible, logging in from
// scratch otherwise, and persists the refreshed cookies either way.
func (app *Application) authenticate() error {
	app.logger.Info("Authenticating with X...")

	snapshot, err := app.db.LoadCookies(app.config.Account.Username)
	if err != nil {
		app.logger.WithError(err).Warn("Failed to load stored cookies")
	}

	restored := false
	if snapshot != "" {
		if err := app.browser.ImportCookies(snapshot); err != nil {
			app.logger.WithError(err).Warn("Failed to import stored cookies")
		} else {
			restored = app.auth.RestoreSession()
		}
	}

	if !restored {
		if err := app.auth.Login(); err != nil {
			return err
		}
	}

	app.saveCookies()
	app.logger.Info("Authentication successful!")
	return nil
}

func (app *Application) saveCookies() {
	snapshot, err := app.browser.ExportCookies()
	if err != nil {
		app.logger.WithError(err).Warn("Failed to export cookies")
		return
	}

	if err := app.db.SaveCookies(app.config.Account.Username, snapshot); err != nil {
		app.logger.WithError(err).Warn("Failed to store cookies")
	}

	// Keep a file copy so the session can be inspected or moved between hosts
	if path := app.config.Storage.CookiesPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			if err := os.WriteFile(path, []byte(snapshot), 0600); err != nil {
				app.logger.WithError(err).Debug("Failed to write cookie file")
			}
		}
	}
}

// runSession is the full workflow: search for campaign posts, engage each
// one through the orchestrator, then report the session.
func (app *Application) runSession() error {
	sessionStart := time.Now()

	urls, err := app.searcher.CollectPostURLs(app.config.Search.MaxPostsPerSession)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if err := app.db.RecordSearch(app.searcher.BuildQuery(), len(urls)); err != nil {
		app.logger.WithError(err).Warn("Failed to record search")
	}

	if len(urls) == 0 {
		app.logger.Info("No campaign posts found")
		return nil
	}
	app.logger.Infof("Processing %d posts", len(urls))

	var sessionErrors []string
	for i, url := range urls {
		processed, err := app.db.IsPostProcessed(url)
		if err != nil {
			app.logger.WithError(err).Warn("Failed to check post history")
		}
		if processed {
			app.logger.Infof("Skipping already processed post: %s", url)
			continue
		}

		if *dryRun {
			app.logger.Infof("[dry run] would process: %s", url)
			continue
		}

		result := app.orch.ProcessPost(url)
		app.savePostResult(result)
		if !result.Succeeded() {
			sessionErrors = append(sessionErrors, fmt.Sprintf("post %s incomplete", url))
		}

		if i < len(urls)-1 {
			app.delays.WaitInterPost()
		}
	}

	app.report(sessionStart, sessionErrors)
	return nil
}

func (app *Application) savePostResult(result orchestrator.Result) {
	records := app.orch.Records()
	var duration time.Duration
	var fillerCount int
	if len(records) > 0 {
		last := records[len(records)-1]
		duration = last.Duration
		fillerCount = last.FillerCount
	}

	err := app.db.SavePostResult(&storage.PostResult{
		URL:         result.URL,
		Navigation:  result.Navigation,
		Follow:      result.Follow,
		Repost:      result.Repost,
		Like:        result.Like,
		Success:     result.Succeeded(),
		DurationSec: duration.Seconds(),
		FillerCount: fillerCount,
	})
	if err != nil {
		app.logger.WithError(err).Warn("Failed to save post result")
	}
}

// report persists the session summary and sends the Slack notification.
func (app *Application) report(sessionStart time.Time, sessionErrors []string) {
	stats := app.orch.Statistics()
	diversity := app.orch.DiversityScore()

	app.logger.Info("=== Session Summary ===")
	app.logger.Infof("  Posts: %d processed, %d succeeded", stats.PostsProcessed, stats.SuccessfulPosts)
	app.logger.Infof("  Success rate: %.0f%%", stats.SuccessRate*100)
	app.logger.Infof("  Avg post duration: %.1fs", stats.AvgPostDuration.Seconds())
	app.logger.Infof("  Behavior diversity: %.2f", diversity)
	app.logger.Info("=======================")

	fillerTotal := 0
	for _, n := range stats.FillerRuns {
		fillerTotal += n
	}

	summary := &storage.SessionSummary{
		StartedAt:       sessionStart,
		FinishedAt:      time.Now(),
		PostsProcessed:  stats.PostsProcessed,
		SuccessfulPosts: stats.SuccessfulPosts,
		SuccessRate:     stats.SuccessRate,
		DiversityScore:  diversity,
		FillerRuns:      fillerTotal,
	}
	if err := app.db.SaveSessionSummary(summary); err != nil {
		app.logger.WithError(err).Warn("Failed to save session summary")
	}

	err := app.notifier.SendSessionSummary(&notify.Summary{
		StartedAt:       sessionStart,
		Duration:        time.Since(sessionStart),
		PostsProcessed:  stats.PostsProcessed,
		SuccessfulPosts: stats.SuccessfulPosts,
		SuccessRate:     stats.SuccessRate,
		DiversityScore:  diversity,
		FillerRuns:      stats.FillerRuns,
		Errors:          sessionErrors,
	})
	if err != nil {
		app.logger.WithError(err).Warn("Failed to send session summary")
	}
}

// runSearchOnly collects and prints campaign post URLs without engaging.
func (app *Application) runSearchOnly() error {
	urls, err := app.searcher.CollectPostURLs(app.config.Search.MaxPostsPerSession)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if err := app.db.RecordSearch(app.searcher.BuildQuery(), len(urls)); err != nil {
		app.logger.WithError(err).Warn("Failed to record search")
	}

	app.logger.Infof("Found %d campaign posts", len(urls))
	for _, url := range urls {
		app.logger.Infof("  - %s", url)
	}
	return nil
}

// runInteractive keeps the authenticated browser open for manual use.
func (app *Application) runInteractive() error {
	app.logger.Info("Running in interactive mode")
	app.logger.Info("Browser is open. You can interact manually or close to exit.")
	app.logger.Info("Press Ctrl+C to exit")

	select {}
}

// Close cleans up application resources
func (app *Application) Close() {
	app.logger.Info("Shutting down...")

	if app.browser != nil {
		app.browser.Close()
	}
	if app.db != nil {
		app.db.Close()
	}

	app.logger.Info("Cleanup complete")
}

// setupGracefulShutdown handles OS signals for graceful shutdown
func setupGracefulShutdown(app *Application) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		app.logger.Infof("Received signal: %v", sig)
		app.Close()
		os.Exit(0)
	}()
}

// printBanner prints the application banner
func printBanner() {
	banner := `
╔══════════════════════════════════════════════════════════════════╗
║            X Campaign Automation - Educational Only              ║
╠══════════════════════════════════════════════════════════════════╣
║  ⚠️  WARNING: This tool is for EDUCATIONAL PURPOSES ONLY         ║
║  ⚠️  Using automation on X violates their Terms of Service       ║
║  ⚠️  Do NOT use this on production accounts                      ║
╚══════════════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
