package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nestware/homesift/config"
	"github.com/nestware/homesift/models"
)

// cardSelector matches the known listing-container variants; used for the
// stability wait and lazy-load card counting.
const cardSelector = `article[data-test="property-card"], article.property-card`

// bottomSelector marks the end of the lazily loaded result list.
const bottomSelector = `div.search-list-save-search-parent`

// nextPageSelectors are the pagination-control variants, tried in order.
var nextPageSelectors = []string{
	`a[title="Next page"]`,
	`a[rel="next"]`,
}

// Page is the handle to one loaded catalog tab. It is owned by a single
// orchestrator and must not be used concurrently.
type Page struct {
	page *rod.Page
	cfg  config.NavigateConfig
}

// awaitStable polls for the listing markers, bounded by the stabilize
// timeout. On expiry it simply returns: best-effort content is preferable to
// blocking, and downstream validation catches whatever is missing.
func (p *Page) awaitStable(ctx context.Context) {
	bound := p.page.Context(ctx).Timeout(p.cfg.StabilizeTimeout)
	if err := bound.WaitElementsMoreThan(cardSelector, 0); err != nil {
		slog.Warn("listing markers did not settle, using best-effort content", "error", err)
		return
	}
	if err := bound.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("DOM did not converge, proceeding with current state", "error", err)
	}
}

// dismissModal closes the interstitial dialog some catalogs raise on first
// load. Best-effort: failure to find or click one is not an error.
func (p *Page) dismissModal(ctx context.Context) {
	bound := p.page.Context(ctx).Timeout(2 * time.Second)
	has, el, err := bound.Has(`div[role="dialog"] button[aria-label="Close"]`)
	if err != nil || !has {
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		slog.Debug("dismissed interstitial modal")
	}
}

// sortByNewest clicks the sort control and picks newest-first. Best-effort.
func (p *Page) sortByNewest(ctx context.Context) {
	bound := p.page.Context(ctx).Timeout(5 * time.Second)
	sortBtn, err := bound.Element(`button#sort-popover`)
	if err != nil {
		slog.Debug("sort control not found", "error", err)
		return
	}
	if err := sortBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return
	}
	newest, err := bound.ElementR("button, li, span", "Newest")
	if err != nil {
		return
	}
	if err := newest.Click(proto.InputMouseButtonLeft, 1); err == nil {
		_ = bound.WaitLoad()
		slog.Debug("sorted listings by newest")
	}
}

// Content scrolls the result list until no more cards lazy-load, then
// returns an immutable HTML snapshot of the page.
func (p *Page) Content(ctx context.Context) (string, error) {
	bound := p.page.Context(ctx).Timeout(p.cfg.PageTimeout)

	p.loadAllCards(bound)
	p.scrollToTop(bound)

	if err := bound.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("DOM did not converge before snapshot", "error", err)
	}

	html, err := bound.HTML()
	if err != nil {
		return "", models.NewRunError(models.ErrCodeExtraction, "failed to snapshot page HTML", err)
	}
	return html, nil
}

// loadAllCards drives the lazy loader: scroll, count cards, stop on the
// bottom marker, the per-page cap, or stagnation across three iterations.
func (p *Page) loadAllCards(bound *rod.Page) {
	const maxStagnant = 3
	previous, stagnant := 0, 0

	for i := 0; i < p.cfg.MaxScrollAttempts; i++ {
		count := p.cardCount(bound)
		slog.Debug("lazy-load iteration", "iteration", i+1, "cards", count)

		if count >= p.cfg.MaxListingsPerPage {
			slog.Debug("reached per-page listing cap", "cards", count)
			return
		}
		if p.bottomVisible(bound) {
			return
		}
		if count == previous {
			stagnant++
			if stagnant >= maxStagnant {
				slog.Warn("no new listings loaded after repeated scrolls, stopping", "cards", count)
				return
			}
		} else {
			stagnant = 0
		}
		previous = count

		p.humanScroll(bound)
	}
}

// cardCount returns how many listing containers are currently in the DOM.
func (p *Page) cardCount(bound *rod.Page) int {
	res, err := bound.Eval(fmt.Sprintf(
		`() => document.querySelectorAll('%s').length`, cardSelector))
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// bottomVisible reports whether the end-of-list marker is in the viewport.
func (p *Page) bottomVisible(bound *rod.Page) bool {
	res, err := bound.Eval(fmt.Sprintf(`() => {
		const el = document.querySelector('%s');
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		return rect.top < window.innerHeight && rect.bottom > 0;
	}`, bottomSelector))
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// humanScroll advances the result list by a randomized amount, occasionally
// backtracking. The list lives in an inner scroll container on some catalog
// variants, so scrolling goes through JS rather than mouse wheel events.
func (p *Page) humanScroll(bound *rod.Page) {
	p.scrollBy(bound, 300+rand.IntN(500))
	p.pause(bound, 200, 600)

	if rand.Float64() < 0.15 {
		p.scrollBy(bound, -(100 + rand.IntN(200)))
		p.pause(bound, 200, 600)
	}
}

func (p *Page) scrollBy(bound *rod.Page, amount int) {
	_, _ = bound.Eval(fmt.Sprintf(`() => {
		const container = document.querySelector('[class*="search-page-list-container"]');
		if (container) {
			container.scrollTop += %d;
		} else {
			window.scrollBy(0, %d);
		}
	}`, amount, amount))
}

func (p *Page) scrollToTop(bound *rod.Page) {
	_, _ = bound.Eval(`() => {
		const container = document.querySelector('[class*="search-page-list-container"]');
		if (container) {
			container.scrollTop = 0;
		} else {
			window.scrollTo(0, 0);
		}
	}`)
}

func (p *Page) pause(bound *rod.Page, minMS, maxMS int) {
	d := time.Duration(minMS+rand.IntN(maxMS-minMS)) * time.Millisecond
	select {
	case <-time.After(d):
	case <-bound.GetContext().Done():
	}
}

// HasNextPage reports whether an enabled, visible next-page control exists.
func (p *Page) HasNextPage(ctx context.Context) bool {
	_, err := p.nextControl(ctx)
	return err == nil
}

// nextControl locates the pagination control and verifies it is usable.
func (p *Page) nextControl(ctx context.Context) (*rod.Element, error) {
	bound := p.page.Context(ctx).Timeout(3 * time.Second)
	for _, sel := range nextPageSelectors {
		has, el, err := bound.Has(sel)
		if err != nil || !has {
			continue
		}
		if disabled, _ := el.Attribute("aria-disabled"); disabled != nil && *disabled == "true" {
			return nil, fmt.Errorf("next-page control %q is disabled", sel)
		}
		if visible, err := el.Visible(); err != nil || !visible {
			return nil, fmt.Errorf("next-page control %q is not visible", sel)
		}
		return el, nil
	}
	return nil, fmt.Errorf("no next-page control present")
}

// Advance clicks through to the next results page. A transient failure is
// retried once; a second consecutive failure is fatal for the run.
func (p *Page) Advance(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := p.clickNext(ctx); err != nil {
			lastErr = err
			slog.Warn("advance attempt failed", "attempt", attempt, "error", err)
			continue
		}
		p.awaitStable(ctx)
		return nil
	}
	return models.NewRunError(models.ErrCodeNavigation,
		"next-page control absent or unresponsive after retry", lastErr)
}

func (p *Page) clickNext(ctx context.Context) error {
	el, err := p.nextControl(ctx)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click next-page control: %w", err)
	}
	bound := p.page.Context(ctx).Timeout(p.cfg.PageTimeout)
	if err := bound.WaitLoad(); err != nil {
		slog.Debug("load event did not fire after advance", "error", err)
	}
	return nil
}

// Close releases the tab. Safe to call once per page on every exit path.
func (p *Page) Close() error {
	return p.page.Close()
}
