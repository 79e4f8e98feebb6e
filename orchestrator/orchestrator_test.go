package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nestware/homesift/config"
	"github.com/nestware/homesift/dispatcher"
	"github.com/nestware/homesift/models"
)

// card renders one listing container the extractor understands.
func card(addr, href, price string) string {
	var b strings.Builder
	b.WriteString(`<article data-test="property-card">`)
	if addr != "" {
		fmt.Fprintf(&b, `<address>%s</address>`, addr)
	}
	if price != "" {
		fmt.Fprintf(&b, `<span data-test="property-card-price"><span>%s</span></span>`, price)
	}
	if href != "" {
		fmt.Fprintf(&b, `<a data-test="property-card-link" href="%s">details</a>`, href)
	}
	b.WriteString(`</article>`)
	return b.String()
}

func pageHTML(cards ...string) string {
	return `<html><body>` + strings.Join(cards, "\n") + `</body></html>`
}

// fakePage serves a fixed sequence of snapshots, one per catalog page.
type fakePage struct {
	snapshots    []string
	idx          int
	contentCalls int
	advanceErr   error
	closed       bool
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.contentCalls++
	return p.snapshots[p.idx], nil
}

func (p *fakePage) HasNextPage(ctx context.Context) bool {
	return p.idx < len(p.snapshots)-1
}

func (p *fakePage) Advance(ctx context.Context) error {
	if p.advanceErr != nil {
		return p.advanceErr
	}
	p.idx++
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeNav struct {
	page    PageHandle
	openErr error
	opens   int
}

func (n *fakeNav) Open(ctx context.Context, url string) (PageHandle, error) {
	n.opens++
	if n.openErr != nil {
		return nil, n.openErr
	}
	return n.page, nil
}

// memorySink records everything submitted to it.
type memorySink struct {
	kind      models.SinkKind
	submitErr error

	mu      sync.Mutex
	recs    []models.ListingRecord
	flushes int
}

func (s *memorySink) Kind() models.SinkKind { return s.kind }

func (s *memorySink) Submit(ctx context.Context, rec models.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memorySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func testConfig() config.Config {
	return config.Config{
		ConfigName: "test-catalog",
		SearchURL:  "https://catalog.example.com/search/",
		FormURL:    "https://forms.example.com/f",
	}
}

func testNavConfig() config.NavigateConfig {
	return config.NavigateConfig{MaxPages: 50}
}

func testDispatcher(sinks ...dispatcher.Sink) *dispatcher.Dispatcher {
	return dispatcher.New(sinks, config.SubmitConfig{
		Retries: 2,
		Timeout: time.Second,
		Workers: 1,
	})
}

func TestRunTwoPagesWithDuplicateAndPricelessListing(t *testing.T) {
	page := &fakePage{snapshots: []string{
		pageHTML(
			card("11 Pine St", "/homedetails/11-pine", "$1,000/mo"),
			card("22 Oak Ave", "/homedetails/22-oak", ""),
			card("33 Elm Rd", "/homedetails/33-elm", "$3,000/mo"),
		),
		pageHTML(
			card("11 Pine St", "/homedetails/11-pine", "$1,000/mo"),
			card("44 Birch Ln", "/homedetails/44-birch", "$4,400/mo"),
		),
	}}
	nav := &fakeNav{page: page}
	form := &memorySink{kind: models.SinkForm}
	sheet := &memorySink{kind: models.SinkSheet}

	o := New(testConfig(), testNavConfig(), nav, testDispatcher(form, sheet))
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Pages != 2 {
		t.Errorf("Pages = %d, want 2", summary.Pages)
	}
	if summary.Scraped != 5 {
		t.Errorf("Scraped = %d, want 5", summary.Scraped)
	}
	if summary.Deduplicated != 1 {
		t.Errorf("Deduplicated = %d, want 1", summary.Deduplicated)
	}
	if summary.Eligible != 4 {
		t.Errorf("Eligible = %d, want 4", summary.Eligible)
	}
	if summary.Submitted != 8 || summary.Failed != 0 {
		t.Errorf("Submitted/Failed = %d/%d, want 8/0 (4 records x 2 sinks)", summary.Submitted, summary.Failed)
	}
	if len(summary.Outcomes) != 8 {
		t.Fatalf("got %d outcomes, want 8", len(summary.Outcomes))
	}

	// Outcomes come back in discovery order despite concurrent dispatch.
	for i := 1; i < len(summary.Outcomes); i++ {
		if summary.Outcomes[i].Seq < summary.Outcomes[i-1].Seq {
			t.Fatalf("outcomes out of order at %d: %+v", i, summary.Outcomes)
		}
	}

	unknown := 0
	for _, rec := range form.recs {
		if rec.Price == models.PriceUnknown {
			unknown++
		}
	}
	if unknown != 1 {
		t.Errorf("form sink saw %d unknown-price records, want 1", unknown)
	}

	// Relative detail links are resolved against the search URL.
	if got := form.recs[0].DetailLink; got != "https://catalog.example.com/homedetails/11-pine" {
		t.Errorf("DetailLink = %q, want absolute URL", got)
	}

	if !page.closed {
		t.Error("page was not closed")
	}
	if form.flushes == 0 || sheet.flushes == 0 {
		t.Error("sinks were not drained at end of run")
	}
}

func TestRunConfigErrorBeforeNavigation(t *testing.T) {
	nav := &fakeNav{}
	cfg := testConfig()
	cfg.FormURL = "" // no sink enabled

	o := New(cfg, testNavConfig(), nav, testDispatcher())
	summary, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with no sink configured")
	}
	if got := models.CodeOf(err); got != models.ErrCodeConfig {
		t.Errorf("error code = %q, want %q", got, models.ErrCodeConfig)
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil on config error", summary)
	}
	if nav.opens != 0 {
		t.Errorf("navigation attempted %d times before validation", nav.opens)
	}
}

func TestRunOpenFailure(t *testing.T) {
	nav := &fakeNav{openErr: models.NewRunError(models.ErrCodeNavigation, "boom", nil)}

	o := New(testConfig(), testNavConfig(), nav, testDispatcher())
	summary, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite open failure")
	}
	if summary == nil || summary.Pages != 0 {
		t.Errorf("summary = %+v, want empty summary", summary)
	}
}

func TestRunAdvanceFailureKeepsPartialSummary(t *testing.T) {
	page := &fakePage{
		snapshots: []string{
			pageHTML(
				card("11 Pine St", "/homedetails/11-pine", "$1,000/mo"),
				card("22 Oak Ave", "/homedetails/22-oak", "$2,000/mo"),
				card("33 Elm Rd", "/homedetails/33-elm", "$3,000/mo"),
			),
			pageHTML(card("never reached", "/x", "$1/mo")),
		},
		advanceErr: models.NewRunError(models.ErrCodeNavigation, "next-page click failed after retry", nil),
	}
	form := &memorySink{kind: models.SinkForm}

	o := New(testConfig(), testNavConfig(), &fakeNav{page: page}, testDispatcher(form))
	summary, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite fatal advance failure")
	}
	if got := models.CodeOf(err); got != models.ErrCodeNavigation {
		t.Errorf("error code = %q, want %q", got, models.ErrCodeNavigation)
	}
	if summary.Pages != 1 {
		t.Errorf("Pages = %d, want 1", summary.Pages)
	}
	if len(summary.Outcomes) != 3 {
		t.Errorf("got %d outcomes, want the 3 from page 1", len(summary.Outcomes))
	}
	if len(form.recs) != 3 {
		t.Errorf("form sink saw %d records, want 3", len(form.recs))
	}
}

func TestRunCancellationStopsFurtherPages(t *testing.T) {
	page := &fakePage{snapshots: []string{
		pageHTML(card("11 Pine St", "/homedetails/11-pine", "$1,000/mo")),
		pageHTML(card("22 Oak Ave", "/homedetails/22-oak", "$2,000/mo")),
		pageHTML(card("33 Elm Rd", "/homedetails/33-elm", "$3,000/mo")),
	}}
	form := &memorySink{kind: models.SinkForm}

	ctx, cancel := context.WithCancel(context.Background())
	o := New(testConfig(), testNavConfig(), &fakeNav{page: page}, testDispatcher(form),
		WithProgress(func(pageNum, scraped, submitted int) {
			if pageNum == 1 {
				cancel()
			}
		}))

	summary, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("cancellation treated as failure: %v", err)
	}
	if summary.Pages != 1 {
		t.Errorf("Pages = %d, want 1 (no fetches after cancel)", summary.Pages)
	}
	if page.contentCalls != 1 {
		t.Errorf("Content called %d times, want 1", page.contentCalls)
	}
	// The page already in flight still submits, and the drain still runs.
	if len(form.recs) != 1 {
		t.Errorf("form sink saw %d records, want 1", len(form.recs))
	}
	if form.flushes == 0 {
		t.Error("drain skipped after cancellation")
	}
}

func TestRunPageGuard(t *testing.T) {
	page := &fakePage{snapshots: []string{
		pageHTML(card("11 Pine St", "/a", "$1/mo")),
		pageHTML(card("22 Oak Ave", "/b", "$2/mo")),
		pageHTML(card("33 Elm Rd", "/c", "$3/mo")),
		pageHTML(card("44 Birch Ln", "/d", "$4/mo")),
	}}
	navCfg := testNavConfig()
	navCfg.MaxPages = 2

	o := New(testConfig(), navCfg, &fakeNav{page: page}, testDispatcher(&memorySink{kind: models.SinkForm}))
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Pages != 2 {
		t.Errorf("Pages = %d, want guard to stop at 2", summary.Pages)
	}
}

func TestRunRejectedSubmissionsAreCounted(t *testing.T) {
	page := &fakePage{snapshots: []string{
		pageHTML(
			card("11 Pine St", "/homedetails/11-pine", "$1,000/mo"),
			card("22 Oak Ave", "/homedetails/22-oak", "$2,000/mo"),
		),
	}}
	form := &memorySink{
		kind:      models.SinkForm,
		submitErr: models.NewRunError(models.ErrCodeSubmitRejected, "form layout changed", nil),
	}

	o := New(testConfig(), testNavConfig(), &fakeNav{page: page}, testDispatcher(form))
	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("per-record failures must not abort the run: %v", err)
	}
	if summary.Submitted != 0 || summary.Failed != 2 {
		t.Errorf("Submitted/Failed = %d/%d, want 0/2", summary.Submitted, summary.Failed)
	}
	for _, o := range summary.Outcomes {
		if o.Status != models.StatusFailed || o.Attempts != 1 {
			t.Errorf("outcome = %+v, want failed after a single attempt", o)
		}
		if models.CodeOf(o.Err) != models.ErrCodeSubmitRejected {
			t.Errorf("outcome error = %v, want reject code preserved", o.Err)
		}
	}
}
