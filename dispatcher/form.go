package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nestware/homesift/models"
)

// FormSink submits records one at a time by driving the web form in its own
// browser tab: fill the three fields, click submit, wait for the
// confirmation marker.
type FormSink struct {
	browser *rod.Browser
	formURL string

	// One form tab at a time; the browser process is shared with the
	// navigator and concurrent form fills gain nothing.
	mu sync.Mutex
}

// NewFormSink creates a form sink on an already-connected browser.
func NewFormSink(browser *rod.Browser, formURL string) *FormSink {
	return &FormSink{browser: browser, formURL: formURL}
}

func (f *FormSink) Kind() models.SinkKind {
	return models.SinkForm
}

// Flush is a no-op: the form sink holds no buffered state.
func (f *FormSink) Flush(ctx context.Context) error {
	return nil
}

// Submit fills and sends the form for one record. Navigation and
// confirmation timeouts are transient (the form service hiccuped); a form
// that no longer carries the expected three text inputs is a reject, since
// retrying cannot fix a schema mismatch.
func (f *FormSink) Submit(ctx context.Context, rec models.ListingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return models.NewRunError(models.ErrCodeSubmitTransient, "failed to open form tab", err)
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx)
	if err := p.Navigate(f.formURL); err != nil {
		return models.NewRunError(models.ErrCodeSubmitTransient, "failed to load form", err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		return models.NewRunError(models.ErrCodeSubmitTransient, "form did not settle", err)
	}

	inputs, err := p.Elements(`input[type="text"]`)
	if err != nil || len(inputs) < 3 {
		return models.NewRunError(models.ErrCodeSubmitRejected,
			fmt.Sprintf("form does not expose the expected fields (found %d)", len(inputs)), err)
	}

	for i, value := range []string{rec.Address, rec.Price, rec.DetailLink} {
		if err := inputs[i].Input(value); err != nil {
			return models.NewRunError(models.ErrCodeSubmitTransient,
				fmt.Sprintf("failed to fill form field %d", i), err)
		}
	}

	if err := f.clickSubmit(p); err != nil {
		return err
	}

	// The form acknowledges with a recorded-response message; without it
	// the submission cannot be assumed delivered.
	if _, err := p.Timeout(5 * time.Second).ElementR("div", "response has been recorded"); err != nil {
		return models.NewRunError(models.ErrCodeSubmitTransient,
			"form confirmation not received", err)
	}
	return nil
}

// clickSubmit tries the known submit-control variants in order.
func (f *FormSink) clickSubmit(p *rod.Page) error {
	if el, err := p.Timeout(3 * time.Second).ElementR(`div[role="button"]`, "Submit"); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}
	if el, err := p.Timeout(3 * time.Second).Element(`button[type="submit"]`); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}
	return models.NewRunError(models.ErrCodeSubmitRejected, "form submit control not found", nil)
}
