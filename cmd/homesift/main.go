package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nestware/homesift/config"
	"github.com/nestware/homesift/dispatcher"
	"github.com/nestware/homesift/models"
	"github.com/nestware/homesift/navigator"
	"github.com/nestware/homesift/orchestrator"
)

// main only translates run's result into a process exit code: os.Exit skips
// deferred calls, so the browser shutdown defers must all live in run and
// complete before the exit.
func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Load configuration ───────────────────────────────────────
	settings := config.Load()
	initLogger(settings.Log)

	configs, err := config.LoadDir(settings.ConfigDir)
	if err != nil {
		slog.Error("failed to load configs", "dir", settings.ConfigDir, "error", err)
		return 1
	}
	slog.Info("homesift starting",
		"configs", len(configs),
		"configDir", settings.ConfigDir,
		"headless", settings.Browser.Headless,
	)

	// ── 2. Launch the browser session ───────────────────────────────
	session, err := navigator.NewSession(settings.Browser, settings.Navigate)
	if err != nil {
		slog.Error("failed to start browser session", "error", err)
		return 1
	}
	defer session.Close()

	// ── 3. Cancellation on SIGINT/SIGTERM ───────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 4. Run every config sequentially ────────────────────────────
	exitCode := 0
	for _, cfg := range configs {
		slog.Info("processing config", "name", cfg.ConfigName)
		if err := runOne(ctx, settings, session, cfg); err != nil {
			exitCode = 1
		}
		if ctx.Err() != nil {
			slog.Info("shutdown signal received, stopping")
			break
		}
	}

	slog.Info("homesift stopped")
	return exitCode
}

// runOne scrapes and submits a single catalog config, rendering progress
// and the final summary.
func runOne(ctx context.Context, settings *config.Settings, session *navigator.Session, cfg config.Config) error {
	sinks, err := buildSinks(session, cfg, settings.Submit)
	if err != nil {
		slog.Error("cannot build sinks", "config", cfg.ConfigName, "error", err)
		return err
	}
	disp := dispatcher.New(sinks, settings.Submit)

	pw := progress.NewWriter()
	pw.SetTrackerLength(25)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	tracker := &progress.Tracker{Message: "Scraping " + cfg.ConfigName, Units: progress.UnitsDefault}
	pw.AppendTracker(tracker)
	go pw.Render()

	orch := orchestrator.New(cfg, settings.Navigate, rodNavigator{session: session}, disp,
		orchestrator.WithProgress(func(page, scraped, submitted int) {
			tracker.SetValue(int64(page))
			tracker.UpdateMessage(cfg.ConfigName + ": " +
				plural(scraped, "listing") + ", " + plural(submitted, "submission"))
		}),
	)

	summary, err := orch.Run(ctx)
	tracker.MarkAsDone()
	pw.Stop()

	if summary != nil {
		renderSummary(summary)
	}
	if err != nil {
		var runErr *models.RunError
		if errors.As(err, &runErr) {
			slog.Error("run failed", "config", cfg.ConfigName, "code", runErr.Code, "error", err)
		} else {
			slog.Error("run failed", "config", cfg.ConfigName, "error", err)
		}
		return err
	}
	return nil
}

// rodNavigator adapts the rod session to the orchestrator's Navigator.
type rodNavigator struct {
	session *navigator.Session
}

func (n rodNavigator) Open(ctx context.Context, url string) (orchestrator.PageHandle, error) {
	return n.session.Open(ctx, url)
}

// buildSinks assembles the sinks a config enables, in the config's order.
func buildSinks(session *navigator.Session, cfg config.Config, submitCfg config.SubmitConfig) ([]dispatcher.Sink, error) {
	var sinks []dispatcher.Sink
	for _, kind := range cfg.Sinks() {
		switch kind {
		case models.SinkForm:
			sinks = append(sinks, dispatcher.NewFormSink(session.Browser(), cfg.FormURL))
		case models.SinkSheet:
			sheet, err := dispatcher.NewSheetSink(cfg.SheetURL, cfg.SheetName, cfg.CredentialsPath, submitCfg.SheetBatchSize)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sheet)
		}
	}
	return sinks, nil
}

// renderSummary prints the run counters and the per-record outcomes.
func renderSummary(summary *models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Run summary: " + summary.ConfigName)
	t.AppendRow(table.Row{"Pages", summary.Pages})
	t.AppendRow(table.Row{"Scraped", summary.Scraped})
	t.AppendRow(table.Row{"Skipped (invalid)", summary.Skipped})
	t.AppendRow(table.Row{"Deduplicated", summary.Deduplicated})
	t.AppendRow(table.Row{"Eligible", summary.Eligible})
	t.AppendRow(table.Row{"Submitted", summary.Submitted})
	t.AppendRow(table.Row{"Failed", summary.Failed})
	t.Render()

	if len(summary.Outcomes) == 0 {
		return
	}
	ot := table.NewWriter()
	ot.SetOutputMirror(os.Stdout)
	ot.AppendHeader(table.Row{"#", "Address", "Price", "Sink", "Status", "Attempts", "Error"})
	for _, o := range summary.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		ot.AppendRow(table.Row{
			o.Seq, o.Record.Address, o.Record.Price, o.Sink, o.Status, o.Attempts, errText,
		})
	}
	ot.Render()
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
