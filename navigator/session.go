// Package navigator owns the headless browser session. The rod page behind
// a Page handle is never shared: other components only ever see immutable
// HTML snapshots taken by Content.
package navigator

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/nestware/homesift/config"
	"github.com/nestware/homesift/models"
)

// Session manages the browser process lifecycle. One session serves a whole
// program run; individual scrapes each get their own Page.
type Session struct {
	browser    *rod.Browser
	browserCfg config.BrowserConfig
	navCfg     config.NavigateConfig
}

// NewSession launches the browser and connects to it.
func NewSession(browserCfg config.BrowserConfig, navCfg config.NavigateConfig) (*Session, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.Bin != "" {
		l = l.Bin(browserCfg.Bin)
	}
	if browserCfg.Proxy != "" {
		l = l.Proxy(browserCfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewRunError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	return &Session{
		browser:    browser,
		browserCfg: browserCfg,
		navCfg:     navCfg,
	}, nil
}

// Browser exposes the underlying browser so sinks that drive their own tabs
// (the form sink) can share the process without touching scrape pages.
func (s *Session) Browser() *rod.Browser {
	return s.browser
}

// Close kills the browser process. Call on shutdown to prevent zombie
// Chromium processes.
func (s *Session) Close() {
	slog.Info("navigator shutting down: closing browser")
	s.browser.MustClose()
}

// Open loads the catalog URL in a fresh tab and waits for the listing
// markers to settle. The returned Page owns the tab exclusively.
func (s *Session) Open(ctx context.Context, rawURL string) (*Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeBrowserCrash, "failed to open browser tab", err)
	}

	// Stealth and headers only take effect for navigations installed
	// before them.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}
	if u, err := url.Parse(rawURL); err == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(page)
	}

	p := page.Context(ctx).Timeout(s.navCfg.PageTimeout)
	if err := p.Navigate(rawURL); err != nil {
		_ = page.Close()
		return nil, models.NewRunError(models.ErrCodeNavigation, "failed to load search URL", err)
	}

	handle := &Page{page: page, cfg: s.navCfg}
	handle.awaitStable(ctx)
	handle.dismissModal(ctx)
	if s.navCfg.SortNewest {
		handle.sortByNewest(ctx)
	}
	return handle, nil
}
