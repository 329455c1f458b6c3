// Package walker traverses a form page the way a person would: advance focus
// to the next control, work out what question it asks, answer it from the
// answer store or the operator, and stop when focus lands on the page's
// advance/submit control. The classifier half of the package turns a raw
// focused-element snapshot into a typed field descriptor.
package walker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ygulsen/applypilot/api/schemas"
	"github.com/ygulsen/applypilot/internal/normalize"
)

// textInputTypes are the input types handled as plain text entry. An empty
// type attribute defaults to text.
var textInputTypes = map[string]bool{
	"":         true,
	"text":     true,
	"email":    true,
	"tel":      true,
	"url":      true,
	"number":   true,
	"search":   true,
	"password": true,
	"date":     true,
}

// buttonInputTypes are input types that act as buttons, never as answerable
// fields.
var buttonInputTypes = map[string]bool{
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// classifyKind buckets the focused control structurally, in priority order.
func classifyKind(c schemas.ControlSummary) schemas.FieldKind {
	switch c.Tag {
	case "textarea":
		return schemas.FieldText
	case "input":
		switch {
		case c.Type == "file":
			return schemas.FieldFile
		case c.Type == "checkbox":
			return schemas.FieldCheckbox
		case c.Type == "radio":
			return schemas.FieldRadio
		case buttonInputTypes[c.Type]:
			return schemas.FieldButton
		case textInputTypes[c.Type]:
			return schemas.FieldText
		}
	case "select":
		return schemas.FieldSelect
	}
	if isCustomDropdown(c) {
		return schemas.FieldCustomDropdown
	}
	if c.Tag == "button" || c.Tag == "a" {
		return schemas.FieldButton
	}
	return schemas.FieldUnknown
}

// isCustomDropdown recognizes scripted dropdown widgets by ARIA role first,
// class-name heuristics second.
func isCustomDropdown(c schemas.ControlSummary) bool {
	switch c.Role {
	case "combobox", "listbox":
		return true
	}
	class := strings.ToLower(c.Class)
	return strings.Contains(class, "select") || strings.Contains(class, "dropdown")
}

// classify resolves the focused control into a field descriptor: its
// structural kind, its question text, and its group identity for
// checkbox/radio sets. Label lookups go back to the live page because no
// single markup convention is reliable across target sites.
func (w *Walker) classify(ctx context.Context, c schemas.ControlSummary) (schemas.FieldDescriptor, error) {
	kind := classifyKind(c)

	question, labeled, err := w.questionFor(ctx, c)
	if err != nil {
		return schemas.FieldDescriptor{}, err
	}

	desc := schemas.FieldDescriptor{
		Kind:               kind,
		Question:           question,
		NormalizedQuestion: normalize.Question(question),
	}

	if kind == schemas.FieldCheckbox || kind == schemas.FieldRadio {
		desc.GroupKey = c.Name
		desc.GroupQuestion = desc.NormalizedQuestion
		if !labeled && desc.GroupKey != "" {
			// Controls in a group frequently have no label of their own;
			// the enclosing fieldset's legend carries the shared question.
			legend, err := w.page.ActiveFieldsetLegend(ctx)
			if err != nil {
				return schemas.FieldDescriptor{}, err
			}
			if legend != "" {
				desc.Question = legend
				desc.NormalizedQuestion = normalize.Question(legend)
				desc.GroupQuestion = desc.NormalizedQuestion
			}
		}
	}
	return desc, nil
}

// questionFor resolves the human-readable question for the control. First
// non-empty source wins: label[for] by id, a label inside the parent or
// grandparent wrapper, a label preceding the control, the placeholder, the
// accessibility label, then a synthetic fallback. The labeled return reports
// whether an actual label element (sources 1-3) supplied the text.
func (w *Walker) questionFor(ctx context.Context, c schemas.ControlSummary) (question string, labeled bool, err error) {
	if c.ID != "" {
		text, err := w.page.LabelFor(ctx, c.ID)
		if err != nil {
			return "", false, err
		}
		if text != "" {
			return text, true, nil
		}
	}
	text, err := w.page.ActiveAncestorLabel(ctx)
	if err != nil {
		return "", false, err
	}
	if text != "" {
		return text, true, nil
	}
	text, err = w.page.ActivePrecedingLabel(ctx)
	if err != nil {
		return "", false, err
	}
	if text != "" {
		return text, true, nil
	}
	if c.Placeholder != "" {
		return c.Placeholder, false, nil
	}
	if c.AriaLabel != "" {
		return c.AriaLabel, false, nil
	}
	return syntheticQuestion(c), false, nil
}

// syntheticQuestion is the last-resort question text for an unlabeled
// control, stable enough to serve as an answer-store key.
func syntheticQuestion(c schemas.ControlSummary) string {
	if c.Type != "" {
		return fmt.Sprintf("unlabeled %s field (%s)", c.Tag, c.Type)
	}
	return fmt.Sprintf("unlabeled %s field", c.Tag)
}
