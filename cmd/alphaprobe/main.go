// Command alphaprobe checks whether images carry transparency.
//
// Usage:
//
//	alphaprobe -config alphaprobe.yaml                   # drive Chrome, right-click images to check them
//	alphaprobe -url https://example.com/logo.png         # check one image and print the verdict
//	alphaprobe -url logo.png -page https://example.com/  # same, resolving against a page
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/alphaprobe/dbopen"
	"github.com/hazyhaar/alphaprobe/extension"
	"github.com/hazyhaar/alphaprobe/host"
	"github.com/hazyhaar/alphaprobe/host/chrome"
	"github.com/hazyhaar/alphaprobe/host/inproc"
	"github.com/hazyhaar/alphaprobe/internal/browser"
	"github.com/hazyhaar/alphaprobe/internal/config"
	"github.com/hazyhaar/alphaprobe/internal/control"
	"github.com/hazyhaar/alphaprobe/internal/fetcher"
	"github.com/hazyhaar/alphaprobe/observability"
	"github.com/hazyhaar/alphaprobe/probe"
)

func main() {
	configPath := flag.String("config", "", "path to alphaprobe.yaml")
	imageURL := flag.String("url", "", "check a single image and exit")
	pageURL := flag.String("page", "", "page the -url image is resolved against")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	progress := flag.Bool("progress", false, "show download progress on stderr (-url mode)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "alphaprobe: load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *imageURL != "":
		err = runOnce(ctx, logger, cfg, *imageURL, *pageURL, *progress)
	case *configPath != "":
		err = runServe(ctx, logger, cfg)
	default:
		fmt.Fprintln(os.Stderr, "usage: alphaprobe -config <file> | -url <image-url> [-page <page-url>]")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("alphaprobe: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openMetrics opens the metrics store when one is configured. The returned
// close func is never nil.
func openMetrics(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*observability.MetricsManager, func(), error) {
	oc := cfg.Observability
	if oc.DB == "" {
		return nil, func() {}, nil
	}
	db, err := dbopen.Open(oc.DB, dbopen.WithMkdirAll(), dbopen.WithBusyTimeout(oc.BusyTimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("observability db: %w", err)
	}
	if err := observability.Init(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("observability schema: %w", err)
	}
	mm := observability.NewMetricsManager(db, 100, oc.FlushInterval, logger)
	if n, err := mm.Cleanup(ctx, oc.RetentionDays); err != nil {
		logger.Warn("alphaprobe: metrics cleanup", "error", err)
	} else if n > 0 {
		logger.Info("alphaprobe: metrics cleanup", "deleted", n, "retention_days", oc.RetentionDays)
	}
	return mm, func() {
		if err := mm.Close(); err != nil {
			logger.Warn("alphaprobe: close metrics", "error", err)
		}
		db.Close()
	}, nil
}

func extensionOptions(logger *slog.Logger, cfg *config.Config, mm *observability.MetricsManager) []extension.Option {
	opts := []extension.Option{
		extension.WithLogger(logger),
		extension.WithProbeOptions(probe.Options{
			MaxPixels:    cfg.Probe.MaxPixels,
			ReportErrors: cfg.Probe.ReportErrors,
		}),
	}
	if mm != nil {
		opts = append(opts, extension.WithMetrics(mm))
	}
	return opts
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	mm, closeMetrics, err := openMetrics(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeMetrics()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:         cfg.Browser.Remote,
		Mode:              browser.Mode(cfg.Browser.Stealth),
		XvfbDisplay:       cfg.Browser.XvfbDisplay,
		ResourceBlocking:  cfg.Browser.ResourceBlocking,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		Logger:            logger,
	})
	defer mgr.Close()

	h := chrome.New(mgr,
		chrome.WithAutoDismissDialogs(*cfg.Browser.AutoDismissDialogs),
		chrome.WithMaxFetchBytes(cfg.Probe.MaxImageBytes),
		chrome.WithLogger(logger),
	)
	defer h.Close()

	ext := extension.New(h, extensionOptions(logger, cfg, mm)...)
	if err := ext.Init(ctx); err != nil {
		return err
	}
	defer ext.Close()

	if err := h.Start(ctx); err != nil {
		return err
	}

	for _, u := range cfg.Tabs {
		if _, err := h.OpenTab(ctx, u); err != nil {
			logger.Warn("alphaprobe: open tab", "url", u, "error", err)
		}
	}

	logger.Info("alphaprobe: ready", "tabs", len(h.Tabs()), "api", cfg.API.Addr)

	if cfg.API.Addr == "" {
		<-ctx.Done()
		return nil
	}
	var apiOpts []control.Option
	if mm != nil {
		apiOpts = append(apiOpts, control.WithMetrics(mm))
	}
	return control.New(h, logger, apiOpts...).ListenAndServe(ctx, cfg.API.Addr)
}

// runOnce checks one image on the in-process host. The verdict goes to
// stdout; a failed probe is an error.
func runOnce(ctx context.Context, logger *slog.Logger, cfg *config.Config, imageURL, pageURL string, progress bool) error {
	mm, closeMetrics, err := openMetrics(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeMetrics()

	fopts := []fetcher.Option{
		fetcher.WithMaxBytes(cfg.Probe.MaxImageBytes),
		fetcher.WithLogger(logger),
	}
	if progress {
		fopts = append(fopts, fetcher.WithProgress(os.Stderr))
	}
	h := inproc.New(
		inproc.WithFetcher(fetcher.New(fopts...)),
		inproc.WithAlertWriter(os.Stdout),
		inproc.WithLogger(logger),
	)

	ext := extension.New(h, extensionOptions(logger, cfg, mm)...)
	if err := ext.Init(ctx); err != nil {
		return err
	}
	defer ext.Close()
	h.Install(ctx)

	if pageURL == "" {
		pageURL = imageURL
	}
	tab, err := h.OpenTab(ctx, pageURL)
	if err != nil {
		return err
	}
	if err := h.Click(ctx, host.ClickEvent{MenuItemID: extension.MenuID, SrcURL: imageURL, TabID: tab}); err != nil {
		return err
	}
	ext.Wait()

	alerts := h.Alerts(tab)
	if len(alerts) == 0 || strings.HasPrefix(alerts[0], probe.MsgFailed) {
		if console := h.ConsoleErrors(tab); len(console) > 0 {
			return errors.New(console[0])
		}
		return errors.New("alphaprobe: probe failed")
	}
	return nil
}
