// Package driver runs the job queue: one browser session per job, strictly
// sequential, each torn down before the next begins. It owns the operator's
// per-job readiness prompt, the LinkedIn-to-employer-site handoff, and the
// store flush after every job.
package driver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/api/schemas"
	"github.com/ygulsen/applypilot/internal/browser"
	"github.com/ygulsen/applypilot/internal/config"
	"github.com/ygulsen/applypilot/internal/flow"
	"github.com/ygulsen/applypilot/internal/normalize"
	"github.com/ygulsen/applypilot/internal/operator"
	"github.com/ygulsen/applypilot/internal/store"
	"github.com/ygulsen/applypilot/internal/walker"
)

// Session is the browsing surface one job needs. browser.Session implements
// it; tests substitute a fake.
type Session interface {
	flow.Browser
	walker.Page
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	Close()
}

// linkedInDismissSelectors close the signed-out interstitials that cover a
// LinkedIn job page.
var linkedInDismissSelectors = []string{
	"button.modal__dismiss",
	"button.contextual-sign-in-modal__modal-dismiss",
	"button[aria-label='Dismiss']",
}

// applyURLSelector is the element on a signed-out LinkedIn job page carrying
// the employer's offsite application URL.
const applyURLSelector = "code#applyUrl"

// Driver processes the marked job queue.
type Driver struct {
	cfg     *config.Config
	answers *store.AnswerStore
	flows   *store.FlowStore
	op      operator.Interface
	log     *zap.Logger

	// newSession is swappable for tests.
	newSession func(ctx context.Context) (Session, error)
}

func New(cfg *config.Config, answers *store.AnswerStore, flows *store.FlowStore, op operator.Interface, logger *zap.Logger) *Driver {
	d := &Driver{
		cfg:     cfg,
		answers: answers,
		flows:   flows,
		op:      op,
		log:     logger.Named("driver"),
	}
	d.newSession = func(ctx context.Context) (Session, error) {
		return browser.NewSession(ctx, cfg.Browser, logger)
	}
	return d
}

// Run works through the queue. A failed job is logged and does not stop the
// ones after it; both stores are flushed after every job regardless of how
// it ended.
func (d *Driver) Run(ctx context.Context, queue []schemas.Job) error {
	if len(queue) == 0 {
		d.op.Say("No jobs are marked for application.")
		return nil
	}

	for i, job := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		proceed, err := d.ready(i+1, len(queue), job)
		if err != nil {
			return err
		}
		if !proceed {
			// An operator skip is an expected outcome, not a failure.
			d.log.Info("Job skipped by operator.",
				zap.String("company", job.Company), zap.Int("row", job.Row))
			continue
		}

		if err := d.runJob(ctx, job); err != nil {
			if ctx.Err() != nil {
				return err
			}
			d.log.Error("Job failed.",
				zap.String("company", job.Company), zap.String("url", job.URL), zap.Error(err))
			d.op.Say(fmt.Sprintf("Job at %s failed: %v", job.Company, err))
		}
		d.flush()
	}
	return nil
}

// ready blocks on the per-job readiness prompt until the operator answers
// scan or skip.
func (d *Driver) ready(n, total int, job schemas.Job) (bool, error) {
	for {
		answer, err := d.op.Ask(fmt.Sprintf(
			"[%d/%d] %s at %s - type 'scan' to start or 'skip' to pass: ",
			n, total, job.Title, job.Company))
		if err != nil {
			return false, fmt.Errorf("readiness prompt: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "scan":
			return true, nil
		case "skip":
			return false, nil
		default:
			d.op.Say("Please type 'scan' or 'skip'.")
		}
	}
}

func (d *Driver) runJob(ctx context.Context, job schemas.Job) error {
	session, err := d.newSession(ctx)
	if err != nil {
		return fmt.Errorf("opening browser session: %w", err)
	}
	defer session.Close()

	if err := session.Navigate(ctx, job.URL); err != nil {
		return err
	}
	if err := session.Sleep(ctx, d.cfg.Browser.InitialPageWait); err != nil {
		return err
	}

	if isLinkedInURL(job.URL) {
		if err := d.leaveLinkedIn(ctx, session); err != nil {
			return err
		}
	}

	companyKey := normalize.CompanyKey(job.Company)
	w := walker.New(session, d.answers, d.op, d.cfg.Walker, d.log)
	engine := flow.NewEngine(session, w, d.flows, d.op, d.cfg.Flow, d.cfg.Browser, d.log)

	out, err := engine.Run(ctx, companyKey)
	if err != nil {
		return err
	}
	d.log.Info("Flow finished.",
		zap.String("company", companyKey),
		zap.Int("steps", out.Steps),
		zap.Bool("completed", out.Completed),
		zap.Bool("handed_off", out.HandedOff))

	err = d.op.Acknowledge("Review the application and submit it yourself; press Enter to close this job's browser: ")
	if err != nil {
		return fmt.Errorf("final review prompt: %w", err)
	}
	return nil
}

// leaveLinkedIn moves from a LinkedIn listing to the employer's own
// application page: close the sign-in interstitials, then follow the offsite
// apply URL LinkedIn embeds in the page, falling back to the operator when it
// is absent.
func (d *Driver) leaveLinkedIn(ctx context.Context, session Session) error {
	for _, selector := range linkedInDismissSelectors {
		ok, err := session.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := session.Click(ctx, selector); err != nil {
			d.log.Debug("Interstitial dismiss failed, continuing.",
				zap.String("selector", selector), zap.Error(err))
		}
	}

	ok, err := session.Exists(ctx, applyURLSelector)
	if err != nil {
		return err
	}
	if ok {
		raw, err := session.Text(ctx, applyURLSelector)
		if err != nil {
			return err
		}
		if applyURL := cleanApplyURL(raw); applyURL != "" {
			d.log.Info("Following offsite apply link.", zap.String("url", applyURL))
			if err := session.Navigate(ctx, applyURL); err != nil {
				return err
			}
			return session.Sleep(ctx, d.cfg.Browser.InitialPageWait)
		}
	}

	err = d.op.Acknowledge("Could not find the offsite apply link; open the employer's application page yourself, then press Enter: ")
	if err != nil {
		return fmt.Errorf("manual navigation prompt: %w", err)
	}
	return nil
}

// flush persists both stores; failures are logged, never fatal mid-queue.
func (d *Driver) flush() {
	if err := d.answers.Flush(); err != nil {
		d.log.Error("Answer store flush failed.", zap.Error(err))
	}
	if err := d.flows.Flush(); err != nil {
		d.log.Error("Flow store flush failed.", zap.Error(err))
	}
}

// isLinkedInURL reports whether the job URL points at LinkedIn rather than
// directly at an employer site.
func isLinkedInURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com")
}

// cleanApplyURL unwraps the JSON-ish string LinkedIn stores its offsite
// apply URL as: surrounding quotes and escaped slashes.
func cleanApplyURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, `\/`, `/`)
	if !strings.HasPrefix(s, "http") {
		return ""
	}
	return s
}
