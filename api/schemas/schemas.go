// Package schemas defines the shared data contracts of applypilot: the
// recorded application-flow step model, the job queue record, and the
// ephemeral descriptors exchanged between the page walker and the flow
// engine. Keeping these in one leaf package prevents dependency cycles
// between the stores, the walker and the engine.
package schemas

import (
	"fmt"
	"strings"
)

// StepKind identifies the recorded classification of one page in a company's
// application flow. The set is closed: execution sites switch over every kind
// and treat anything else as a corrupted flow.
type StepKind string

const (
	// StepLogin marks a page that requires credential entry.
	StepLogin StepKind = "LOGIN"
	// StepIntermediateAction marks a page where a single stored button must
	// be clicked before any fields appear.
	StepIntermediateAction StepKind = "INTERMEDIATE_ACTION"
	// StepFormPage marks a page with fillable fields and an optional "next"
	// control advancing to more fields.
	StepFormPage StepKind = "FORM_PAGE"
	// StepFinalSubmit is the terminal marker; automation stops here and
	// hands the page to the operator.
	StepFinalSubmit StepKind = "FINAL_SUBMIT"
)

// Valid reports whether k is one of the recorded step kinds.
func (k StepKind) Valid() bool {
	switch k {
	case StepLogin, StepIntermediateAction, StepFormPage, StepFinalSubmit:
		return true
	}
	return false
}

// Step is one recorded step of a company's application flow. Selector and
// Description are only meaningful for INTERMEDIATE_ACTION; NextButtonSelector
// only for FORM_PAGE. The JSON shape matches the hand-editable flows file.
type Step struct {
	Kind               StepKind `json:"type"`
	Selector           string   `json:"selector,omitempty"`
	Description        string   `json:"description,omitempty"`
	NextButtonSelector string   `json:"next_button_selector,omitempty"`
}

// Validate checks that the step carries the data its kind requires.
func (s Step) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	if s.Kind == StepIntermediateAction && strings.TrimSpace(s.Selector) == "" {
		return fmt.Errorf("intermediate action step is missing its selector")
	}
	return nil
}

// String renders a compact human-readable form used in logs and prompts.
func (s Step) String() string {
	switch s.Kind {
	case StepIntermediateAction:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Selector)
	case StepFormPage:
		if s.NextButtonSelector != "" {
			return fmt.Sprintf("%s(next=%s)", s.Kind, s.NextButtonSelector)
		}
		return fmt.Sprintf("%s(no next)", s.Kind)
	default:
		return string(s.Kind)
	}
}

// Job is one record of the job queue: a listing the operator marked for an
// application attempt.
type Job struct {
	Title   string
	Company string
	URL     string
	// Row is the 1-based CSV row the record came from, kept for operator
	// messages only.
	Row int
}

// FieldKind is the structural classification bucket of a focused control.
type FieldKind string

const (
	FieldText           FieldKind = "text"
	FieldFile           FieldKind = "file"
	FieldCheckbox       FieldKind = "checkbox"
	FieldRadio          FieldKind = "radio"
	FieldSelect         FieldKind = "select"
	FieldCustomDropdown FieldKind = "custom-dropdown"
	FieldButton         FieldKind = "button"
	FieldUnknown        FieldKind = "unknown"
)

// ControlSummary is a snapshot of the currently focused element, read in one
// round trip from the live page. All attribute values are raw; normalization
// happens in the classifier.
type ControlSummary struct {
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Class       string `json:"class"`
	Placeholder string `json:"placeholder"`
	AriaLabel   string `json:"ariaLabel"`
	Value       string `json:"value"`
	Text        string `json:"text"`
	Checked     bool   `json:"checked"`
	// Body is true when focus sits on the document body, i.e. nothing
	// focusable holds focus.
	Body bool `json:"body"`
}

// FieldDescriptor is the classifier's verdict for one focused control. It
// lives for a single walker iteration and is never persisted.
type FieldDescriptor struct {
	Kind FieldKind
	// Question is the best-effort human-readable question for the control.
	Question string
	// NormalizedQuestion is Question passed through normalize.Question; it
	// is the answer-store key (before any file-field suffixing).
	NormalizedQuestion string
	// GroupKey is the shared input name for checkbox/radio sets. Empty for
	// ungrouped controls.
	GroupKey string
	// GroupQuestion is the normalized question shared by the group, when one
	// was resolvable.
	GroupQuestion string
}

// WalkResult reports how a page walk ended.
type WalkResult struct {
	// ReachedTerminal is true when focus landed on the configured next
	// button or on a generic submit-like control.
	ReachedTerminal bool
	// TerminalIsNext is true when the terminal control was located by the
	// configured next-button selector rather than by its visible text.
	TerminalIsNext bool
	// TerminalText is the visible text or value of the terminal control.
	TerminalText string
	// SkipBudgetExhausted is true when the walk stopped because too many
	// consecutive controls were skipped.
	SkipBudgetExhausted bool
	// Handled counts controls that were actually resolved during the walk.
	Handled int
}
