package flow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ygulsen/applypilot/api/schemas"
	"github.com/ygulsen/applypilot/internal/config"
	"github.com/ygulsen/applypilot/internal/operator"
	"github.com/ygulsen/applypilot/internal/store"
)

// fakeBrowser records selector-level interactions. Selectors listed in
// existing are visible; everything else fails bounded waits.
type fakeBrowser struct {
	existing   map[string]bool
	failClicks map[string]bool
	clicks     []string
	fills      map[string]string
}

func (b *fakeBrowser) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if b.existing[selector] {
		return nil
	}
	return fmt.Errorf("element not found within wait: %s", selector)
}

func (b *fakeBrowser) Exists(ctx context.Context, selector string) (bool, error) {
	return b.existing[selector], nil
}

func (b *fakeBrowser) Click(ctx context.Context, selector string) error {
	if b.failClicks[selector] {
		return fmt.Errorf("click failed for %s", selector)
	}
	b.clicks = append(b.clicks, selector)
	return nil
}

func (b *fakeBrowser) Fill(ctx context.Context, selector string, text string) error {
	if b.fills == nil {
		b.fills = make(map[string]string)
	}
	b.fills[selector] = text
	return nil
}

func (b *fakeBrowser) Sleep(ctx context.Context, d time.Duration) error { return nil }

// fakeWalker replays canned walk results in order, repeating the last one
// when the queue runs out.
type fakeWalker struct {
	results []schemas.WalkResult
	calls   []string
	next    int
}

func (w *fakeWalker) Walk(ctx context.Context, nextSelector string) (schemas.WalkResult, error) {
	w.calls = append(w.calls, nextSelector)
	if w.next < len(w.results) {
		r := w.results[w.next]
		w.next++
		return r, nil
	}
	if len(w.results) == 0 {
		return schemas.WalkResult{}, nil
	}
	return w.results[len(w.results)-1], nil
}

func newTestEngine(t *testing.T, b Browser, w PageWalker, op operator.Interface) (*Engine, *store.FlowStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	flows := store.OpenFlows(filepath.Join(t.TempDir(), "flows.json"), logger)
	cfg := config.FlowConfig{MaxSteps: 20}
	browserCfg := config.BrowserConfig{ElementWait: 100 * time.Millisecond}
	return NewEngine(b, w, flows, op, cfg, browserCfg, logger), flows
}

func TestRunReplaysCompleteFlowWithoutClassificationPrompts(t *testing.T) {
	defer goleak.VerifyNone(t)

	browser := &fakeBrowser{}
	walker := &fakeWalker{results: []schemas.WalkResult{
		{ReachedTerminal: true, TerminalIsNext: true, TerminalText: "Continue", Handled: 3},
	}}
	op := &operator.Scripted{}
	engine, flows := newTestEngine(t, browser, walker, op)

	require.NoError(t, flows.AppendStep("acme", schemas.Step{
		Kind: schemas.StepFormPage, NextButtonSelector: "button#next",
	}))
	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepFinalSubmit}))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	assert.Equal(t, 2, out.Steps)
	assert.Equal(t, []string{"button#next"}, browser.clicks)
	assert.Equal(t, []string{"button#next"}, walker.calls)
	assert.Empty(t, op.Asked, "replay must not prompt for classification")
}

func TestRunRecordsNewFlowFromOperatorClassification(t *testing.T) {
	browser := &fakeBrowser{}
	walker := &fakeWalker{results: []schemas.WalkResult{
		{ReachedTerminal: true, TerminalText: "Submit application"},
	}}
	op := &operator.Scripted{Responses: []string{"F", ""}}
	engine, flows := newTestEngine(t, browser, walker, op)

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	// Terminal reached with no next button recorded: hand off to operator.
	assert.True(t, out.HandedOff)
	assert.False(t, out.Completed)

	steps := flows.Flow("acme")
	require.Len(t, steps, 1)
	assert.Equal(t, schemas.StepFormPage, steps[0].Kind)
	assert.Empty(t, steps[0].NextButtonSelector)
}

func TestRunReopensExhaustedReplayForDefinition(t *testing.T) {
	browser := &fakeBrowser{}
	walker := &fakeWalker{results: []schemas.WalkResult{
		{ReachedTerminal: true, TerminalIsNext: true, TerminalText: "Next"},
	}}
	op := &operator.Scripted{Responses: []string{"S"}}
	engine, flows := newTestEngine(t, browser, walker, op)

	// Stored flow ends without a submit page.
	require.NoError(t, flows.AppendStep("acme", schemas.Step{
		Kind: schemas.StepFormPage, NextButtonSelector: "button#next",
	}))
	require.False(t, flows.Complete("acme"))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	assert.Equal(t, 2, out.Steps)
	assert.True(t, flows.Complete("acme"), "the redefined tail completes the stored flow")
	require.Len(t, op.Said, 2)
	assert.Contains(t, op.Said[0], "ends without a submit page")
}

func TestRunIntermediateActionClicksStoredSelector(t *testing.T) {
	browser := &fakeBrowser{existing: map[string]bool{"a#apply": true}}
	op := &operator.Scripted{}
	engine, flows := newTestEngine(t, browser, &fakeWalker{}, op)

	require.NoError(t, flows.AppendStep("acme", schemas.Step{
		Kind: schemas.StepIntermediateAction, Selector: "a#apply", Description: "Apply now",
	}))
	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepFinalSubmit}))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	assert.Equal(t, []string{"a#apply"}, browser.clicks)
	assert.Empty(t, op.Asked)
}

func TestRunIntermediateActionFallsBackToManualClick(t *testing.T) {
	browser := &fakeBrowser{
		existing:   map[string]bool{"a#apply": true},
		failClicks: map[string]bool{"a#apply": true},
	}
	op := &operator.Scripted{}
	engine, flows := newTestEngine(t, browser, &fakeWalker{}, op)

	require.NoError(t, flows.AppendStep("acme", schemas.Step{
		Kind: schemas.StepIntermediateAction, Selector: "a#apply", Description: "Apply now",
	}))
	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepFinalSubmit}))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	require.Len(t, op.Asked, 1)
	assert.Contains(t, op.Asked[0], "Apply now")
}

func TestRunLoginFillsRecognizedForm(t *testing.T) {
	browser := &fakeBrowser{existing: map[string]bool{
		"input[type='password']": true,
		"input[type='email']":    true,
		"button[type='submit']":  true,
	}}
	op := &operator.Scripted{Responses: []string{"ada@example.com", "hunter2"}}
	engine, flows := newTestEngine(t, browser, &fakeWalker{}, op)

	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepLogin}))
	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepFinalSubmit}))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	assert.Equal(t, "ada@example.com", browser.fills["input[type='email']"])
	assert.Equal(t, "hunter2", browser.fills["input[type='password']"])
	assert.Equal(t, []string{"button[type='submit']"}, browser.clicks)
}

func TestRunLoginFallsBackToManualWhenFormUnrecognized(t *testing.T) {
	browser := &fakeBrowser{} // no password field anywhere
	op := &operator.Scripted{}
	engine, flows := newTestEngine(t, browser, &fakeWalker{}, op)

	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepLogin}))
	require.NoError(t, flows.AppendStep("acme", schemas.Step{Kind: schemas.StepFinalSubmit}))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	require.Len(t, op.Asked, 1)
	assert.Contains(t, op.Asked[0], "manually")
	assert.Empty(t, browser.fills)
}

func TestRunRejectsInvalidClassificationAndReprompts(t *testing.T) {
	op := &operator.Scripted{Responses: []string{"X", "S"}}
	engine, _ := newTestEngine(t, &fakeBrowser{}, &fakeWalker{}, op)

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.Completed)
	assert.Contains(t, op.Said, "Please answer L, I, F or S.")
}

func TestRunHandsOffWhenWalkExhaustsSkipBudget(t *testing.T) {
	walker := &fakeWalker{results: []schemas.WalkResult{{SkipBudgetExhausted: true}}}
	op := &operator.Scripted{}
	engine, flows := newTestEngine(t, &fakeBrowser{}, walker, op)

	require.NoError(t, flows.AppendStep("acme", schemas.Step{
		Kind: schemas.StepFormPage, NextButtonSelector: "button#next",
	}))

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.HandedOff)
	assert.False(t, out.Completed)
	require.Len(t, op.Said, 1)
	assert.Contains(t, op.Said[0], "manually")
}

func TestRunStopsAtStepBound(t *testing.T) {
	walker := &fakeWalker{results: []schemas.WalkResult{
		{ReachedTerminal: true, TerminalIsNext: true},
	}}
	op := &operator.Scripted{}
	logger := zaptest.NewLogger(t)
	flows := store.OpenFlows(filepath.Join(t.TempDir(), "flows.json"), logger)
	engine := NewEngine(&fakeBrowser{}, walker, flows, op,
		config.FlowConfig{MaxSteps: 3}, config.BrowserConfig{}, logger)

	for i := 0; i < 5; i++ {
		require.NoError(t, flows.AppendStep("acme", schemas.Step{
			Kind: schemas.StepFormPage, NextButtonSelector: "button#next",
		}))
	}

	out, err := engine.Run(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, out.HandedOff)
	assert.Equal(t, 3, out.Steps)
}
