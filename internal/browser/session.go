// Package browser implements the browsing capability over chromedp. A
// Session owns one visible Chrome instance for the lifetime of one job and
// exposes the selector-level primitives the flow engine needs plus the
// focused-element primitives the page walker needs. Sessions are never shared
// between jobs; the driver tears each one down before the next job starts.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/internal/config"
)

// ErrNotFound reports that a bounded wait for an element expired. Callers
// treat it as "feature absent", not as a fatal condition.
var ErrNotFound = errors.New("element not found within wait")

// Session is a single browsing session backed by a dedicated Chrome process.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	cfg         config.BrowserConfig
}

// NewSession launches a browser and returns a ready session. The caller must
// Close it, typically via defer, regardless of how the job ends.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", sessionID))

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if name, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Job sites are fond of alert() and onbeforeunload dialogs, and an open
	// dialog blocks every CDP interaction. Accept them as they appear.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if dialog, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			log.Info("Accepting page dialog.",
				zap.String("type", dialog.Type.String()),
				zap.String("message", dialog.Message))
			go func() {
				if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(true)); err != nil {
					log.Debug("Dialog handling failed.", zap.Error(err))
				}
			}()
		}
	})

	// Start the browser process now so a broken Chrome install surfaces as
	// an error here instead of on the first navigation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	log.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return &Session{
		id:          sessionID,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
		cfg:         cfg,
	}, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Close tears the browser down. Safe to call more than once.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.logger.Info("Browser session closed.")
}

// run executes chromedp actions against the session, honoring both the
// operational context and the session's own lifetime.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("session closed: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queryOpt picks the chromedp query strategy for a stored selector. Selectors
// beginning with "/" or "(" are XPath; everything else is CSS.
func queryOpt(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// jsonEncode renders a Go string as a JS string literal for embedding in
// evaluated snippets.
func jsonEncode(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(raw)
}

// eval evaluates a JS expression and decodes the result into out (out may be
// nil for side-effect-only scripts).
func (s *Session) eval(ctx context.Context, expr string, out any) error {
	if out == nil {
		var discard json.RawMessage
		out = &discard
	}
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Navigate loads the URL and waits for the document body, bounded by the
// configured navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// CurrentURL reports the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return url, nil
}

// WaitVisible waits up to timeout for the selector to match a visible
// element. Expiry returns ErrNotFound; the caller decides whether that is a
// fallback trigger or an operator escalation.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.ElementWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.run(waitCtx, chromedp.WaitVisible(selector, queryOpt(selector)))
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("%w: %s (%v)", ErrNotFound, selector, timeout)
		}
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}
	return nil
}

// Click performs the full click policy from one call: a simulated pointer
// click, one retry after re-locating on failure, then a scripted click as the
// final fallback. Errors mean both strategies were exhausted and the operator
// should be asked to click manually.
func (s *Session) Click(ctx context.Context, selector string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		clickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.run(clickCtx,
			chromedp.ScrollIntoView(selector, queryOpt(selector)),
			chromedp.Click(selector, queryOpt(selector)),
		)
		cancel()
		if err == nil {
			s.logger.Debug("Click succeeded.", zap.String("selector", selector), zap.Int("attempt", attempt+1))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		s.logger.Debug("Click attempt failed, retrying.", zap.String("selector", selector), zap.Error(err))
	}

	// Scripted fallback for elements that are present but refuse pointer
	// interaction (overlays, zero-size hit targets).
	if err := s.ClickScript(ctx, selector); err != nil {
		return fmt.Errorf("click failed for %s (pointer: %v): %w", selector, lastErr, err)
	}
	s.logger.Debug("Scripted click fallback succeeded.", zap.String("selector", selector))
	return nil
}

// ClickScript invokes the element's click() handler directly.
func (s *Session) ClickScript(ctx context.Context, selector string) error {
	js := fmt.Sprintf(`(sel => {
		const el = %s;
		if (!el) return false;
		el.click();
		return true;
	})(%s)`, locateExpr, jsonEncode(selector))
	var ok bool
	if err := s.eval(ctx, js, &ok); err != nil {
		return fmt.Errorf("scripted click for %s: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("scripted click for %s: %w", selector, ErrNotFound)
	}
	return nil
}

// locateExpr resolves `sel` (already in scope) to an element, accepting both
// CSS and XPath selectors. Embedded in several evaluated snippets.
const locateExpr = `(sel.startsWith('/') || sel.startsWith('(')
		? document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
		: document.querySelector(sel))`

// Fill clears the matched input and types text into it.
func (s *Session) Fill(ctx context.Context, selector string, text string) error {
	jsClear := fmt.Sprintf(`(sel => {
		const el = %s;
		if (!el || el.disabled || el.readOnly) return false;
		el.value = "";
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})(%s)`, locateExpr, jsonEncode(selector))

	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var cleared bool
	err := s.run(opCtx,
		chromedp.ScrollIntoView(selector, queryOpt(selector)),
		chromedp.WaitVisible(selector, queryOpt(selector)),
		chromedp.Evaluate(jsClear, &cleared),
	)
	if err != nil {
		return fmt.Errorf("preparing %s for input: %w", selector, err)
	}
	if !cleared {
		return fmt.Errorf("field %s is not writable", selector)
	}
	if err := s.run(opCtx, chromedp.SendKeys(selector, text, queryOpt(selector))); err != nil {
		return fmt.Errorf("typing into %s: %w", selector, err)
	}
	return nil
}

// Text returns the visible text of the matched element.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(selector, &text, queryOpt(selector))); err != nil {
		return "", fmt.Errorf("reading text of %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// Attribute returns the named attribute of the matched element.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var value string
	var ok bool
	if err := s.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, queryOpt(selector))); err != nil {
		return "", false, fmt.Errorf("reading attribute %s of %s: %w", name, selector, err)
	}
	return value, ok, nil
}

// Exists reports whether the selector matches anything right now, without
// waiting.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	js := fmt.Sprintf(`(sel => !!%s)(%s)`, locateExpr, jsonEncode(selector))
	var ok bool
	if err := s.eval(ctx, js, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// OuterHTML returns the serialized document, used by the listing scraper.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

// Eval evaluates an arbitrary script. The scraper uses it for scrolling.
func (s *Session) Eval(ctx context.Context, expr string, out any) error {
	return s.eval(ctx, expr, out)
}

// Sleep pauses for d, honoring context cancellation. Used to let pages settle
// after clicks and navigations.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
