// Package orchestrator sequences one scrape run: navigate page by page,
// extract, normalize, dedupe, dispatch, and fold everything into a
// RunSummary. All run state lives on one Orchestrator value so independent
// catalogs can run side by side without interference.
package orchestrator

import (
	"context"
	"log/slog"
	"net/url"
	"sort"

	"github.com/nestware/homesift/config"
	"github.com/nestware/homesift/dispatcher"
	"github.com/nestware/homesift/extractor"
	"github.com/nestware/homesift/models"
	"github.com/nestware/homesift/normalizer"
)

// PageHandle is the orchestrator's view of a loaded catalog page.
// navigator.Page satisfies it; tests substitute fakes.
type PageHandle interface {
	Content(ctx context.Context) (string, error)
	HasNextPage(ctx context.Context) bool
	Advance(ctx context.Context) error
	Close() error
}

// Navigator opens a catalog page for scraping.
type Navigator interface {
	Open(ctx context.Context, url string) (PageHandle, error)
}

// Submitter is the orchestrator's view of the submission dispatcher.
type Submitter interface {
	SubmitPage(ctx context.Context, records []dispatcher.Tagged) []models.SubmissionOutcome
	Flush(ctx context.Context) error
}

// Progress is invoked after every processed page with running counts, so a
// caller can render progress without the core importing presentation code.
type Progress func(page, scraped, submitted int)

// Orchestrator runs the navigate → extract → normalize → dispatch pipeline
// for one config.
type Orchestrator struct {
	cfg      config.Config
	navCfg   config.NavigateConfig
	nav      Navigator
	sub      Submitter
	progress Progress
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithProgress registers a per-page progress callback.
func WithProgress(fn Progress) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New assembles an Orchestrator. Nothing is validated or opened until Run.
func New(cfg config.Config, navCfg config.NavigateConfig, nav Navigator, sub Submitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg, navCfg: navCfg, nav: nav, sub: sub}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the state machine Init → Paging → Draining → Done. Fatal
// navigation errors abort the run but the summary accumulated so far is
// still returned alongside the error; per-listing and per-submission
// failures never abort. A configuration error fails fast before any
// navigation, with no partial state to return.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunSummary, error) {
	// ── Init ────────────────────────────────────────────────────────
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(o.cfg.SearchURL)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeConfig, "search URL is not parseable", err)
	}

	summary := &models.RunSummary{ConfigName: o.cfg.ConfigName}

	page, err := o.nav.Open(ctx, o.cfg.SearchURL)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			slog.Warn("failed to close page", "error", err)
		}
	}()

	// ── Paging ──────────────────────────────────────────────────────
	fatal := o.paging(ctx, page, base, summary)

	// ── Draining ────────────────────────────────────────────────────
	// The drain runs on a detached context: buffered rows still get
	// their chance to land after a cancellation.
	if err := o.sub.Flush(context.WithoutCancel(ctx)); err != nil {
		slog.Error("drain flush failed", "config", o.cfg.ConfigName, "error", err)
	}

	// ── Done ────────────────────────────────────────────────────────
	sort.SliceStable(summary.Outcomes, func(i, j int) bool {
		if summary.Outcomes[i].Seq != summary.Outcomes[j].Seq {
			return summary.Outcomes[i].Seq < summary.Outcomes[j].Seq
		}
		return summary.Outcomes[i].Sink < summary.Outcomes[j].Sink
	})

	slog.Info("run finished",
		"config", o.cfg.ConfigName,
		"pages", summary.Pages,
		"scraped", summary.Scraped,
		"skipped", summary.Skipped,
		"deduplicated", summary.Deduplicated,
		"submitted", summary.Submitted,
		"failed", summary.Failed,
	)
	if fatal != nil {
		return summary, fatal
	}
	return summary, nil
}

// paging loops over catalog pages until the pagination ends, the page guard
// trips, the caller cancels, or navigation fails fatally.
func (o *Orchestrator) paging(ctx context.Context, page PageHandle, base *url.URL, summary *models.RunSummary) error {
	dedup := normalizer.NewDeduper()
	seq := 0

	for pageNum := 1; pageNum <= o.navCfg.MaxPages; pageNum++ {
		if ctx.Err() != nil {
			slog.Info("cancellation received, draining", "config", o.cfg.ConfigName, "page", pageNum)
			return nil
		}

		snapshot, err := page.Content(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("cancellation received mid-page, draining", "config", o.cfg.ConfigName, "page", pageNum)
				return nil
			}
			return models.NewRunError(models.ErrCodeNavigation, "failed to read page content", err)
		}

		ex, err := extractor.Extract(snapshot)
		if err != nil {
			// A snapshot the parser cannot read yields zero records;
			// the run continues on later pages.
			slog.Error("page extraction failed", "page", pageNum, "error", err)
			ex = &extractor.PageExtract{}
		}
		summary.Pages++
		summary.Scraped += len(ex.Listings)
		summary.Skipped += len(ex.Skipped)
		for _, skip := range ex.Skipped {
			slog.Warn("skipping invalid listing",
				"page", pageNum, "card", skip.Index, "reason", skip.Reason())
		}

		var batch []dispatcher.Tagged
		for _, raw := range ex.Listings {
			rec := normalizer.Normalize(raw, base)
			if !dedup.Admit(rec) {
				summary.Deduplicated++
				continue
			}
			batch = append(batch, dispatcher.Tagged{Seq: seq, Record: rec})
			seq++
		}
		summary.Eligible += len(batch)
		slog.Info("page processed",
			"config", o.cfg.ConfigName,
			"page", pageNum,
			"listings", len(ex.Listings),
			"eligible", len(batch),
		)

		// In-flight submissions for the current page may complete even
		// if the caller cancels mid-page.
		for _, outcome := range o.sub.SubmitPage(context.WithoutCancel(ctx), batch) {
			summary.Count(outcome)
		}
		if o.progress != nil {
			o.progress(pageNum, summary.Scraped, summary.Submitted)
		}

		if !page.HasNextPage(ctx) {
			return nil
		}
		if err := page.Advance(ctx); err != nil {
			return err
		}
	}

	slog.Warn("page guard reached, stopping pagination",
		"config", o.cfg.ConfigName, "maxPages", o.navCfg.MaxPages)
	return nil
}
