// Package flow drives one job's application flow: replaying the recorded
// steps for a company when they exist, and recording new ones from operator
// classification when they don't. A flow is complete only when it ends in a
// recorded final-submit step; replay running off the end of an incomplete
// flow reopens it for definition at that position.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/api/schemas"
	"github.com/ygulsen/applypilot/internal/config"
	"github.com/ygulsen/applypilot/internal/operator"
	"github.com/ygulsen/applypilot/internal/store"
)

// Browser is the selector-level page surface the engine drives. Implemented
// by browser.Session; tests substitute a scripted fake.
type Browser interface {
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector string, text string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// PageWalker answers the fields of the current page. Implemented by
// walker.Walker.
type PageWalker interface {
	Walk(ctx context.Context, nextSelector string) (schemas.WalkResult, error)
}

// Login probing order. Password inputs identify themselves; username inputs
// are guessed from common attribute shapes, most specific first.
var (
	passwordSelector  = "input[type='password']"
	usernameSelectors = []string{
		"input[type='email']",
		"input[id*='user']",
		"input[name*='user']",
		"input[id*='email']",
		"input[name*='mail']",
	}
	signInSelectors = []string{
		"button[type='submit']",
		"input[type='submit']",
		"//button[normalize-space(.)='Sign in']",
		"button[id*='login']",
		"button[id*='signin']",
	}
)

// Outcome reports how a flow run ended.
type Outcome struct {
	// Completed is true when a final-submit step was reached.
	Completed bool
	// HandedOff is true when automation stopped short and left the page to
	// the operator (no auto-advance defined, or walk exhaustion).
	HandedOff bool
	// Steps is the number of steps executed.
	Steps int
}

// Engine executes and records application flows for one browser session.
type Engine struct {
	browser    Browser
	walker     PageWalker
	flows      *store.FlowStore
	op         operator.Interface
	cfg        config.FlowConfig
	browserCfg config.BrowserConfig
	log        *zap.Logger
}

func NewEngine(b Browser, w PageWalker, flows *store.FlowStore, op operator.Interface, cfg config.FlowConfig, browserCfg config.BrowserConfig, logger *zap.Logger) *Engine {
	return &Engine{
		browser:    b,
		walker:     w,
		flows:      flows,
		op:         op,
		cfg:        cfg,
		browserCfg: browserCfg,
		log:        logger.Named("flow"),
	}
}

// Run works through the company's flow on the already-navigated page. Stored
// steps replay in order; once they run out (or none exist) the operator
// classifies each page and the resulting steps are persisted immediately, so
// a crash mid-definition loses nothing.
func (e *Engine) Run(ctx context.Context, companyKey string) (Outcome, error) {
	steps := e.flows.Flow(companyKey)
	if len(steps) > 0 {
		e.log.Info("Replaying stored flow.",
			zap.String("company", companyKey), zap.Int("steps", len(steps)))
	} else {
		e.log.Info("No stored flow, recording a new one.", zap.String("company", companyKey))
	}

	var out Outcome
	for idx := 0; idx < e.cfg.MaxSteps; idx++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var step schemas.Step
		if idx < len(steps) {
			step = steps[idx]
			e.log.Info("Replaying step.", zap.Int("index", idx), zap.Stringer("step", step))
		} else {
			if idx == len(steps) && len(steps) > 0 {
				// Replay ran past an incomplete flow; define the missing
				// tail instead of advancing blindly.
				e.op.Say(fmt.Sprintf("Stored flow for %s ends without a submit page; continuing definition.", companyKey))
			}
			var err error
			step, err = e.defineStep(ctx, companyKey)
			if err != nil {
				return out, err
			}
		}

		handedOff, err := e.execute(ctx, step)
		if err != nil {
			return out, err
		}
		out.Steps++
		if step.Kind == schemas.StepFinalSubmit {
			out.Completed = true
			return out, nil
		}
		if handedOff {
			out.HandedOff = true
			return out, nil
		}
	}

	e.log.Warn("Step bound reached without a submit page.",
		zap.String("company", companyKey), zap.Int("max_steps", e.cfg.MaxSteps))
	out.HandedOff = true
	return out, nil
}

// defineStep asks the operator to classify the current page and persists the
// resulting step before it is executed.
func (e *Engine) defineStep(ctx context.Context, companyKey string) (schemas.Step, error) {
	var step schemas.Step
	for {
		answer, err := e.op.Ask("Classify this page: [L]ogin, [I]ntermediate action, [F]orm page, [S]ubmit page: ")
		if err != nil {
			return schemas.Step{}, fmt.Errorf("classifying page: %w", err)
		}
		switch strings.ToUpper(strings.TrimSpace(answer)) {
		case "L":
			step = schemas.Step{Kind: schemas.StepLogin}
		case "I":
			selector, err := e.op.Ask("Selector for the button to click: ")
			if err != nil {
				return schemas.Step{}, err
			}
			description, err := e.op.Ask("Short description of the action: ")
			if err != nil {
				return schemas.Step{}, err
			}
			step = schemas.Step{
				Kind:        schemas.StepIntermediateAction,
				Selector:    selector,
				Description: description,
			}
		case "F":
			next, err := e.op.Ask("Selector for the next/continue button (blank if none): ")
			if err != nil {
				return schemas.Step{}, err
			}
			step = schemas.Step{Kind: schemas.StepFormPage, NextButtonSelector: next}
		case "S":
			step = schemas.Step{Kind: schemas.StepFinalSubmit}
		default:
			e.op.Say("Please answer L, I, F or S.")
			continue
		}
		break
	}
	if err := e.flows.AppendStep(companyKey, step); err != nil {
		return schemas.Step{}, fmt.Errorf("recording step for %s: %w", companyKey, err)
	}
	e.log.Info("Recorded new step.", zap.String("company", companyKey), zap.Stringer("step", step))
	return step, nil
}

// execute runs one step against the live page. handedOff reports that
// automation should stop here and leave the page to the operator.
func (e *Engine) execute(ctx context.Context, step schemas.Step) (handedOff bool, err error) {
	switch step.Kind {
	case schemas.StepLogin:
		return false, e.doLogin(ctx)
	case schemas.StepIntermediateAction:
		return false, e.doIntermediate(ctx, step)
	case schemas.StepFormPage:
		return e.doFormPage(ctx, step)
	case schemas.StepFinalSubmit:
		// No action: the operator reviews and submits by hand.
		e.op.Say("Reached the submit page; review and submit manually.")
		return false, nil
	default:
		return false, fmt.Errorf("corrupted flow: unknown step kind %q", step.Kind)
	}
}

// doLogin fills credentials when the login form is recognizable and falls
// back to manual login when it is not. The step always counts as completed:
// a silently failed login is indistinguishable from success, so operator
// acknowledgment is trusted.
func (e *Engine) doLogin(ctx context.Context) error {
	if err := e.tryAutoLogin(ctx); err != nil {
		e.log.Info("Automatic login unavailable, falling back to manual.", zap.Error(err))
		if err := e.op.Acknowledge("Complete the login manually, then press Enter: "); err != nil {
			return fmt.Errorf("waiting on manual login: %w", err)
		}
	}
	return e.browser.Sleep(ctx, e.cfg.LoginSettle)
}

func (e *Engine) tryAutoLogin(ctx context.Context) error {
	if err := e.browser.WaitVisible(ctx, passwordSelector, e.browserCfg.ElementWait); err != nil {
		return fmt.Errorf("no password field: %w", err)
	}
	userSelector := ""
	for _, candidate := range usernameSelectors {
		ok, err := e.browser.Exists(ctx, candidate)
		if err != nil {
			return err
		}
		if ok {
			userSelector = candidate
			break
		}
	}
	if userSelector == "" {
		return fmt.Errorf("no username field matched")
	}

	username, err := e.op.Ask("Login username/email: ")
	if err != nil {
		return fmt.Errorf("asking for username: %w", err)
	}
	password, err := e.op.AskSecret("Login password: ")
	if err != nil {
		return fmt.Errorf("asking for password: %w", err)
	}
	if err := e.browser.Fill(ctx, userSelector, username); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := e.browser.Fill(ctx, passwordSelector, password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}

	for _, candidate := range signInSelectors {
		ok, err := e.browser.Exists(ctx, candidate)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.browser.Click(ctx, candidate); err != nil {
			return fmt.Errorf("clicking sign-in: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no sign-in button matched")
}

func (e *Engine) doIntermediate(ctx context.Context, step schemas.Step) error {
	if err := e.browser.WaitVisible(ctx, step.Selector, e.browserCfg.ElementWait); err != nil {
		e.log.Info("Intermediate control not found, asking operator.",
			zap.String("selector", step.Selector))
		return e.manualClick(ctx, step)
	}
	if err := e.browser.Click(ctx, step.Selector); err != nil {
		e.log.Info("Intermediate click failed, asking operator.",
			zap.String("selector", step.Selector), zap.Error(err))
		return e.manualClick(ctx, step)
	}
	return e.browser.Sleep(ctx, e.cfg.StepSettle)
}

func (e *Engine) manualClick(ctx context.Context, step schemas.Step) error {
	description := step.Description
	if description == "" {
		description = step.Selector
	}
	err := e.op.Acknowledge(fmt.Sprintf("Click %q manually, then press Enter: ", description))
	if err != nil {
		return fmt.Errorf("waiting on manual click: %w", err)
	}
	return e.browser.Sleep(ctx, e.cfg.StepSettle)
}

// doFormPage walks the page's fields, then advances via the recorded next
// button when there is one. A terminal without a configured next button, or a
// walk that exhausted its skip budget, hands the job to the operator.
func (e *Engine) doFormPage(ctx context.Context, step schemas.Step) (handedOff bool, err error) {
	result, err := e.walker.Walk(ctx, step.NextButtonSelector)
	if err != nil {
		return false, fmt.Errorf("walking form page: %w", err)
	}
	e.log.Info("Form page walked.",
		zap.Int("handled", result.Handled),
		zap.Bool("terminal", result.ReachedTerminal),
		zap.Bool("skip_exhausted", result.SkipBudgetExhausted))

	if result.ReachedTerminal && result.TerminalIsNext {
		if err := e.browser.Click(ctx, step.NextButtonSelector); err != nil {
			e.log.Info("Next-button click failed, asking operator.", zap.Error(err))
			ackErr := e.op.Acknowledge(fmt.Sprintf(
				"Click the %q button manually, then press Enter: ", result.TerminalText))
			if ackErr != nil {
				return false, fmt.Errorf("waiting on manual advance: %w", ackErr)
			}
		}
		return false, e.browser.Sleep(ctx, e.cfg.StepSettle)
	}

	if result.ReachedTerminal {
		e.op.Say(fmt.Sprintf("Stopped on %q with no recorded next button; finish this page manually.", result.TerminalText))
	} else {
		e.op.Say("Could not finish walking this page; finish it manually.")
	}
	return true, nil
}
