package walker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/api/schemas"
	"github.com/ygulsen/applypilot/internal/config"
	"github.com/ygulsen/applypilot/internal/operator"
	"github.com/ygulsen/applypilot/internal/store"
)

// Page is the focused-element surface the walker drives. browser.Session
// implements it against a live Chrome; tests substitute a scripted fake.
type Page interface {
	FocusBody(ctx context.Context) error
	FocusNext(ctx context.Context) error
	Active(ctx context.Context) (schemas.ControlSummary, error)
	ActiveMatches(ctx context.Context, selector string) (bool, error)
	LabelFor(ctx context.Context, id string) (string, error)
	ActiveAncestorLabel(ctx context.Context) (string, error)
	ActivePrecedingLabel(ctx context.Context) (string, error)
	ActiveFieldsetLegend(ctx context.Context) (string, error)
	FillActive(ctx context.Context, text string) error
	PressActive(ctx context.Context, key string) error
	SetActiveFile(ctx context.Context, path string) error
	ActiveOptions(ctx context.Context) ([]string, error)
	SelectActiveOption(ctx context.Context, choice string) (bool, error)
	ActiveDescendantText(ctx context.Context, selector string) (string, error)
}

// Keys the walker presses on the focused control. Values match the browser
// session's key constants.
const (
	keyEnter = "\r"
	keySpace = " "
)

// dropdownValueSelectors are the known "selected value display" child
// patterns of scripted dropdown widgets, probed in order during read-back.
var dropdownValueSelectors = []string{
	"div[class*='singleValue']",
	"div[class*='single-value']",
	"div[class*='Select-value'] span",
	"div[class*='value-container'] > div:not([class*='placeholder'])",
	"span[class*='selection-item']",
	".select__single-value",
}

// Walker answers the fields of one form page by advancing focus through it.
type Walker struct {
	page    Page
	answers *store.AnswerStore
	op      operator.Interface
	cfg     config.WalkerConfig
	log     *zap.Logger
}

// New builds a walker over the given page.
func New(page Page, answers *store.AnswerStore, op operator.Interface, cfg config.WalkerConfig, logger *zap.Logger) *Walker {
	return &Walker{
		page:    page,
		answers: answers,
		op:      op,
		cfg:     cfg,
		log:     logger.Named("walker"),
	}
}

// Walk traverses the page's focus order from the top, resolving each
// answerable control, until it reaches a terminal control, exhausts the
// consecutive-skip budget, wraps back to the document body, or hits the
// advance bound. nextSelector, when non-empty, identifies the page's known
// advance button; the walker stops on it without clicking, leaving the click
// decision to the caller.
func (w *Walker) Walk(ctx context.Context, nextSelector string) (schemas.WalkResult, error) {
	if err := w.page.FocusBody(ctx); err != nil {
		return schemas.WalkResult{}, fmt.Errorf("starting walk: %w", err)
	}

	var result schemas.WalkResult
	seen := make(map[string]bool)
	groupsDone := make(map[string]bool)
	skips := 0

	for advance := 0; advance < w.cfg.MaxAdvances; advance++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := w.page.FocusNext(ctx); err != nil {
			return result, fmt.Errorf("advancing focus: %w", err)
		}

		control, err := w.page.Active(ctx)
		if err != nil {
			// The focused element vanished under us (page mutation). Reset
			// to the body and keep walking rather than aborting.
			w.log.Debug("Focus read failed, recovering from body.", zap.Error(err))
			if err := w.page.FocusBody(ctx); err != nil {
				return result, fmt.Errorf("recovering focus: %w", err)
			}
			continue
		}
		if control.Body {
			w.log.Debug("Focus wrapped to document body, walk complete.")
			return result, nil
		}

		key := identityKey(control)
		if seen[key] {
			// A control swallowed the focus advance. Force one more advance;
			// if focus still has not moved on, count it toward the budget.
			if err := w.page.FocusNext(ctx); err != nil {
				return result, fmt.Errorf("advancing stuck focus: %w", err)
			}
			retry, err := w.page.Active(ctx)
			if err != nil || retry.Body || seen[identityKey(retry)] {
				skips++
				if skips >= w.cfg.SkipBudget {
					result.SkipBudgetExhausted = true
					return result, nil
				}
				continue
			}
			control = retry
			key = identityKey(control)
		}
		seen[key] = true

		// Terminal detection happens before answer resolution so the
		// advance/submit control is never treated as a field.
		if nextSelector != "" {
			match, err := w.page.ActiveMatches(ctx, nextSelector)
			if err != nil {
				return result, fmt.Errorf("matching next button: %w", err)
			}
			if match {
				result.ReachedTerminal = true
				result.TerminalIsNext = true
				result.TerminalText = terminalText(control)
				return result, nil
			}
		} else if w.isSubmitLike(control) {
			result.ReachedTerminal = true
			result.TerminalText = terminalText(control)
			w.log.Info("Reached submit-like control.", zap.String("text", result.TerminalText))
			return result, nil
		}

		desc, err := w.classify(ctx, control)
		if err != nil {
			return result, fmt.Errorf("classifying focused control: %w", err)
		}

		handled, err := w.resolve(ctx, control, desc, groupsDone)
		if err != nil {
			return result, err
		}
		if handled {
			result.Handled++
			skips = 0
			continue
		}
		skips++
		if skips >= w.cfg.SkipBudget {
			w.log.Warn("Consecutive-skip budget exhausted, stopping walk.",
				zap.Int("budget", w.cfg.SkipBudget))
			result.SkipBudgetExhausted = true
			return result, nil
		}
	}

	w.log.Warn("Focus-advance bound reached without a terminal control.",
		zap.Int("max_advances", w.cfg.MaxAdvances))
	return result, nil
}

// identityKey distinguishes controls within one walk for the stuck-focus
// guard and the already-processed check.
func identityKey(c schemas.ControlSummary) string {
	if c.ID != "" {
		return "id:" + c.ID
	}
	return strings.Join([]string{c.Tag, c.Type, c.Name, c.Text, c.Value}, "|")
}

// terminalText is the operator-facing description of a terminal control.
func terminalText(c schemas.ControlSummary) string {
	if c.Text != "" {
		return c.Text
	}
	return c.Value
}

// isSubmitLike matches a focused button-ish control against the terminal
// vocabulary by case-insensitive substring over its visible text or value.
func (w *Walker) isSubmitLike(c schemas.ControlSummary) bool {
	if classifyKind(c) != schemas.FieldButton {
		return false
	}
	text := strings.ToLower(terminalText(c))
	if text == "" {
		return false
	}
	for _, want := range w.cfg.TerminalTexts {
		if strings.Contains(text, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

// resolve answers one classified control. The handled return feeds the
// consecutive-skip budget: true means the control was actually dealt with.
func (w *Walker) resolve(ctx context.Context, control schemas.ControlSummary, desc schemas.FieldDescriptor, groupsDone map[string]bool) (bool, error) {
	log := w.log.With(
		zap.String("kind", string(desc.Kind)),
		zap.String("question", desc.NormalizedQuestion))

	switch desc.Kind {
	case schemas.FieldText:
		return true, w.resolveText(ctx, desc, log)
	case schemas.FieldFile:
		return w.resolveFile(ctx, desc, log)
	case schemas.FieldCheckbox, schemas.FieldRadio:
		if desc.GroupKey != "" {
			if groupsDone[desc.GroupKey] {
				log.Debug("Group already resolved on this page, tabbing past.")
				return true, nil
			}
			if err := w.resolveGroup(ctx, desc, log); err != nil {
				return false, err
			}
			groupsDone[desc.GroupKey] = true
			return true, nil
		}
		if desc.Kind == schemas.FieldCheckbox {
			return true, w.resolveStandaloneCheckbox(ctx, control, desc, log)
		}
		// A radio without a name attribute cannot be grouped; treat it like
		// a one-member group.
		if err := w.resolveGroup(ctx, desc, log); err != nil {
			return false, err
		}
		return true, nil
	case schemas.FieldSelect:
		return w.resolveSelect(ctx, desc, log)
	case schemas.FieldCustomDropdown:
		return true, w.resolveCustomDropdown(ctx, desc, log)
	case schemas.FieldButton:
		log.Debug("Skipping button.", zap.String("text", control.Text))
		return false, nil
	default:
		log.Info("Skipping unrecognized control.",
			zap.String("tag", control.Tag), zap.String("type", control.Type))
		return false, nil
	}
}

func (w *Walker) resolveText(ctx context.Context, desc schemas.FieldDescriptor, log *zap.Logger) error {
	answer, ok := w.answers.Get(desc.NormalizedQuestion)
	if !ok {
		var err error
		answer, err = w.op.Ask(fmt.Sprintf("Answer for %q: ", desc.Question))
		if err != nil {
			return fmt.Errorf("asking operator for %q: %w", desc.NormalizedQuestion, err)
		}
		if err := w.answers.Put(desc.NormalizedQuestion, answer); err != nil {
			return err
		}
	} else {
		log.Debug("Filling stored answer.")
	}
	if err := w.page.FillActive(ctx, answer); err != nil {
		return fmt.Errorf("filling %q: %w", desc.NormalizedQuestion, err)
	}
	return nil
}

// fileKey disambiguates file-upload questions so one stored resume path and
// one stored cover-letter path can serve every company.
func fileKey(desc schemas.FieldDescriptor) string {
	q := desc.NormalizedQuestion
	switch {
	case strings.Contains(q, "cover letter"):
		return q + "_cover_letter"
	case strings.Contains(q, "resume"), strings.Contains(q, "cv"):
		return q + "_resume"
	default:
		return q
	}
}

func (w *Walker) resolveFile(ctx context.Context, desc schemas.FieldDescriptor, log *zap.Logger) (bool, error) {
	key := fileKey(desc)
	if path, ok := w.answers.Get(key); ok {
		if _, err := os.Stat(path); err == nil {
			if err := w.page.SetActiveFile(ctx, path); err != nil {
				return false, fmt.Errorf("attaching stored file for %q: %w", key, err)
			}
			return true, nil
		}
		// The stored file moved or was deleted; drop it and re-prompt.
		log.Warn("Stored file path no longer exists, evicting.", zap.String("path", path))
		if err := w.answers.Evict(key); err != nil {
			return false, err
		}
	}

	for {
		path, err := w.op.Ask(fmt.Sprintf("File path for %q (or 'skip'): ", desc.Question))
		if err != nil {
			return false, fmt.Errorf("asking operator for file %q: %w", key, err)
		}
		if strings.EqualFold(path, "skip") {
			log.Info("Operator skipped file upload.")
			return true, nil
		}
		if _, err := os.Stat(path); err != nil {
			w.op.Say(fmt.Sprintf("No file at %q, try again.", path))
			continue
		}
		if err := w.answers.Put(key, path); err != nil {
			return false, err
		}
		if err := w.page.SetActiveFile(ctx, path); err != nil {
			return false, fmt.Errorf("attaching file for %q: %w", key, err)
		}
		return true, nil
	}
}

// resolveGroup handles a checkbox/radio set as one logical question. The
// walker never clicks combinations itself; the operator sets the controls and
// the store remembers their description of the choice.
func (w *Walker) resolveGroup(ctx context.Context, desc schemas.FieldDescriptor, log *zap.Logger) error {
	question := desc.GroupQuestion
	if question == "" {
		question = desc.NormalizedQuestion
	}
	if stored, ok := w.answers.Get(question); ok {
		err := w.op.Acknowledge(fmt.Sprintf(
			"For %q the stored answer is %q. Set the options to match, then press Enter: ",
			desc.Question, stored))
		if err != nil {
			return fmt.Errorf("waiting on group reconciliation: %w", err)
		}
		return nil
	}
	err := w.op.Acknowledge(fmt.Sprintf(
		"Select the options for %q, then press Enter: ", desc.Question))
	if err != nil {
		return fmt.Errorf("waiting on group selection: %w", err)
	}
	chosen, err := w.op.Ask("Describe what you selected: ")
	if err != nil {
		return fmt.Errorf("recording group selection: %w", err)
	}
	if err := w.answers.Put(question, chosen); err != nil {
		return err
	}
	log.Info("Recorded group answer.")
	return nil
}

func (w *Walker) resolveStandaloneCheckbox(ctx context.Context, control schemas.ControlSummary, desc schemas.FieldDescriptor, log *zap.Logger) error {
	if stored, ok := w.answers.Get(desc.NormalizedQuestion); ok {
		want, err := strconv.ParseBool(stored)
		if err != nil {
			log.Warn("Stored checkbox answer is not boolean, treating as unknown.",
				zap.String("stored", stored))
		} else {
			if control.Checked != want {
				if err := w.page.PressActive(ctx, keySpace); err != nil {
					return fmt.Errorf("toggling checkbox %q: %w", desc.NormalizedQuestion, err)
				}
				after, err := w.page.Active(ctx)
				if err != nil {
					return fmt.Errorf("re-reading checkbox %q: %w", desc.NormalizedQuestion, err)
				}
				if after.Checked != want {
					log.Warn("Checkbox did not take the toggle.",
						zap.Bool("want", want), zap.Bool("got", after.Checked))
				}
			}
			return nil
		}
	}

	state := "unchecked"
	if control.Checked {
		state = "checked"
	}
	err := w.op.Acknowledge(fmt.Sprintf(
		"Checkbox %q is currently %s. Correct it if needed, then press Enter: ",
		desc.Question, state))
	if err != nil {
		return fmt.Errorf("waiting on checkbox correction: %w", err)
	}
	final, err := w.page.Active(ctx)
	if err != nil {
		return fmt.Errorf("reading back checkbox state: %w", err)
	}
	return w.answers.Put(desc.NormalizedQuestion, strconv.FormatBool(final.Checked))
}

func (w *Walker) resolveSelect(ctx context.Context, desc schemas.FieldDescriptor, log *zap.Logger) (bool, error) {
	if stored, ok := w.answers.Get(desc.NormalizedQuestion); ok {
		picked, err := w.page.SelectActiveOption(ctx, stored)
		if err != nil {
			return false, fmt.Errorf("selecting stored option for %q: %w", desc.NormalizedQuestion, err)
		}
		if picked {
			return true, nil
		}
		log.Warn("Stored option no longer offered.", zap.String("stored", stored))
	}

	options, err := w.page.ActiveOptions(ctx)
	if err != nil {
		return false, fmt.Errorf("listing options for %q: %w", desc.NormalizedQuestion, err)
	}
	w.op.Say(fmt.Sprintf("Options for %q: %s", desc.Question, strings.Join(options, " | ")))
	for attempt := 0; attempt < 2; attempt++ {
		choice, err := w.op.Ask("Exact option text: ")
		if err != nil {
			return false, fmt.Errorf("asking operator for option: %w", err)
		}
		picked, err := w.page.SelectActiveOption(ctx, choice)
		if err != nil {
			return false, fmt.Errorf("selecting option %q: %w", choice, err)
		}
		if picked {
			if err := w.answers.Put(desc.NormalizedQuestion, choice); err != nil {
				return false, err
			}
			return true, nil
		}
		w.op.Say(fmt.Sprintf("%q did not match an option.", choice))
	}
	log.Warn("Select left unresolved after two attempts.")
	return false, nil
}

// resolveCustomDropdown opens a scripted dropdown as a best effort and has
// the operator pick the value manually; automated selection of these widgets
// is not attempted. On a store miss the chosen value is read back out of the
// widget in layers so it can be remembered.
func (w *Walker) resolveCustomDropdown(ctx context.Context, desc schemas.FieldDescriptor, log *zap.Logger) error {
	if err := w.page.PressActive(ctx, keyEnter); err != nil {
		log.Debug("Dropdown open keystroke failed, continuing.", zap.Error(err))
	}

	stored, known := w.answers.Get(desc.NormalizedQuestion)
	prompt := fmt.Sprintf("Select a value for %q manually, then press Enter: ", desc.Question)
	if known {
		prompt = fmt.Sprintf(
			"For %q the stored answer is %q. Select it manually, then press Enter: ",
			desc.Question, stored)
	}
	if err := w.op.Acknowledge(prompt); err != nil {
		return fmt.Errorf("waiting on dropdown selection: %w", err)
	}
	if known {
		return nil
	}

	chosen, err := w.readBackDropdown(ctx)
	if err != nil {
		return err
	}
	if chosen == "" {
		chosen, err = w.op.Ask("Could not read the selection back; type the exact text you chose: ")
		if err != nil {
			return fmt.Errorf("recording dropdown selection: %w", err)
		}
	}
	if chosen == "" {
		log.Warn("Dropdown selection left unrecorded.")
		return nil
	}
	return w.answers.Put(desc.NormalizedQuestion, chosen)
}

// readBackDropdown probes the widget for its committed value: the value
// attribute, then the visible text when it is not a placeholder, then the
// known value-display child patterns.
func (w *Walker) readBackDropdown(ctx context.Context) (string, error) {
	control, err := w.page.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("reading back dropdown: %w", err)
	}
	if control.Value != "" {
		return control.Value, nil
	}
	if control.Text != "" && control.Text != control.Placeholder {
		return control.Text, nil
	}
	for _, selector := range dropdownValueSelectors {
		text, err := w.page.ActiveDescendantText(ctx, selector)
		if err != nil {
			return "", fmt.Errorf("reading back dropdown: %w", err)
		}
		if text != "" {
			return text, nil
		}
	}
	return strings.TrimSpace(control.Text), nil
}
