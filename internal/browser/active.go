package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ygulsen/applypilot/api/schemas"
)

// keyTab advances focus. chromedp routes key events to the focused element,
// which is exactly the traversal model here; callers of PressActive supply
// their own key strings ("\r", " ").
const keyTab = "\t"

// uploadMark tags the focused element so SetUploadFiles can address it by
// selector. Removed again immediately after the upload is set.
const uploadMark = "data-applypilot-upload"

// FocusBody blurs whatever is focused so the next Tab starts the traversal
// from the top of the page's focus order.
func (s *Session) FocusBody(ctx context.Context) error {
	js := `(() => {
		if (document.activeElement && document.activeElement !== document.body) {
			document.activeElement.blur();
		}
		document.body.focus();
		return true;
	})()`
	var ok bool
	if err := s.eval(ctx, js, &ok); err != nil {
		return fmt.Errorf("resetting focus to body: %w", err)
	}
	return nil
}

// FocusNext advances focus to the next element in the page's focus order and
// gives dynamic widgets a moment to react.
func (s *Session) FocusNext(ctx context.Context) error {
	if err := s.run(ctx, chromedp.KeyEvent(keyTab)); err != nil {
		return fmt.Errorf("advancing focus: %w", err)
	}
	return s.Sleep(ctx, 250*time.Millisecond)
}

// Active captures a summary of the currently focused element in one probe.
// Body is true when focus sits on document.body, which the walker reads as
// "traversal wrapped around".
func (s *Session) Active(ctx context.Context) (schemas.ControlSummary, error) {
	js := `(() => {
		const el = document.activeElement;
		if (!el || el === document.body) return { body: true };
		return {
			tag: el.tagName.toLowerCase(),
			type: (el.getAttribute('type') || '').toLowerCase(),
			id: el.id || '',
			name: el.getAttribute('name') || '',
			role: el.getAttribute('role') || '',
			class: el.className && el.className.toString ? el.className.toString() : '',
			placeholder: el.getAttribute('placeholder') || '',
			ariaLabel: el.getAttribute('aria-label') || '',
			value: el.value !== undefined ? String(el.value) : '',
			text: (el.innerText || el.textContent || '').trim(),
			checked: !!el.checked,
		};
	})()`
	var summary schemas.ControlSummary
	if err := s.eval(ctx, js, &summary); err != nil {
		return schemas.ControlSummary{}, fmt.Errorf("inspecting focused element: %w", err)
	}
	return summary, nil
}

// ActiveMatches reports whether the focused element is the one the selector
// resolves to. Used when replaying a recorded step that named a selector.
func (s *Session) ActiveMatches(ctx context.Context, selector string) (bool, error) {
	js := fmt.Sprintf(`(sel => {
		const el = %s;
		return !!el && el === document.activeElement;
	})(%s)`, locateExpr, jsonEncode(selector))
	var ok bool
	if err := s.eval(ctx, js, &ok); err != nil {
		return false, fmt.Errorf("comparing focused element to %s: %w", selector, err)
	}
	return ok, nil
}

// LabelFor returns the text of the <label for=ID> element for the given id,
// or "" when no such label exists.
func (s *Session) LabelFor(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	js := fmt.Sprintf(`(() => {
		const label = document.querySelector('label[for=' + CSS.escape(%s) + ']');
		return label ? (label.innerText || label.textContent || '').trim() : '';
	})()`, jsonEncode(id))
	var text string
	if err := s.eval(ctx, js, &text); err != nil {
		return "", fmt.Errorf("looking up label for id %q: %w", id, err)
	}
	return text, nil
}

// ActiveAncestorLabel looks for a <label> inside the focused element's parent
// or grandparent, the common wrapper shape for checkboxes and radios.
func (s *Session) ActiveAncestorLabel(ctx context.Context) (string, error) {
	js := `(() => {
		const el = document.activeElement;
		if (!el || el === document.body) return '';
		for (let node = el.parentElement, depth = 0; node && depth < 2; node = node.parentElement, depth++) {
			const label = node.querySelector('label');
			if (label) return (label.innerText || label.textContent || '').trim();
		}
		return '';
	})()`
	var text string
	if err := s.eval(ctx, js, &text); err != nil {
		return "", fmt.Errorf("looking up ancestor label: %w", err)
	}
	return text, nil
}

// ActivePrecedingLabel walks the focused element's preceding siblings for a
// <label>, the usual layout for plain text inputs.
func (s *Session) ActivePrecedingLabel(ctx context.Context) (string, error) {
	js := `(() => {
		const el = document.activeElement;
		if (!el || el === document.body) return '';
		for (let node = el.previousElementSibling; node; node = node.previousElementSibling) {
			if (node.tagName === 'LABEL') return (node.innerText || node.textContent || '').trim();
		}
		return '';
	})()`
	var text string
	if err := s.eval(ctx, js, &text); err != nil {
		return "", fmt.Errorf("looking up preceding label: %w", err)
	}
	return text, nil
}

// ActiveFieldsetLegend returns the legend of the enclosing fieldset, the
// group-level question for radio and checkbox clusters.
func (s *Session) ActiveFieldsetLegend(ctx context.Context) (string, error) {
	js := `(() => {
		const el = document.activeElement;
		if (!el || el === document.body) return '';
		const fs = el.closest('fieldset');
		if (!fs) return '';
		const legend = fs.querySelector('legend');
		return legend ? (legend.innerText || legend.textContent || '').trim() : '';
	})()`
	var text string
	if err := s.eval(ctx, js, &text); err != nil {
		return "", fmt.Errorf("looking up fieldset legend: %w", err)
	}
	return text, nil
}

// FillActive clears the focused input and types text into it.
func (s *Session) FillActive(ctx context.Context, text string) error {
	jsClear := `(() => {
		const el = document.activeElement;
		if (!el || el === document.body || el.disabled || el.readOnly) return false;
		el.value = "";
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	})()`
	var cleared bool
	if err := s.eval(ctx, jsClear, &cleared); err != nil {
		return fmt.Errorf("clearing focused input: %w", err)
	}
	if !cleared {
		return fmt.Errorf("focused element is not writable")
	}
	if text == "" {
		return nil
	}
	if err := s.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("typing into focused input: %w", err)
	}
	return nil
}

// PressActive sends a single key to the focused element.
func (s *Session) PressActive(ctx context.Context, key string) error {
	if err := s.run(ctx, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("sending key to focused element: %w", err)
	}
	return nil
}

// SetActiveFile attaches a local file to the focused file input. The element
// is tagged with a marker attribute so the upload can be addressed by
// selector, then untagged.
func (s *Session) SetActiveFile(ctx context.Context, path string) error {
	jsTag := fmt.Sprintf(`(() => {
		const el = document.activeElement;
		if (!el || el.tagName !== 'INPUT' || (el.getAttribute('type') || '').toLowerCase() !== 'file') return false;
		el.setAttribute('%s', '1');
		return true;
	})()`, uploadMark)
	var tagged bool
	if err := s.eval(ctx, jsTag, &tagged); err != nil {
		return fmt.Errorf("tagging file input: %w", err)
	}
	if !tagged {
		return fmt.Errorf("focused element is not a file input")
	}
	defer func() {
		_ = s.eval(context.Background(), fmt.Sprintf(
			`(() => { const el = document.querySelector('[%s]'); if (el) el.removeAttribute('%s'); })()`,
			uploadMark, uploadMark), nil)
	}()

	// Visibility is deliberately not required: file inputs behind styled
	// upload buttons are usually hidden.
	selector := fmt.Sprintf("input[%s]", uploadMark)
	opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := s.run(opCtx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("attaching file %s: %w", path, err)
	}
	return nil
}

// ActiveOptions lists the selectable option texts of a focused native
// <select>, excluding disabled entries.
func (s *Session) ActiveOptions(ctx context.Context) ([]string, error) {
	js := `(() => {
		const el = document.activeElement;
		if (!el || el.tagName !== 'SELECT') return [];
		return Array.from(el.options)
			.filter(o => !o.disabled)
			.map(o => (o.text || '').trim());
	})()`
	var options []string
	if err := s.eval(ctx, js, &options); err != nil {
		return nil, fmt.Errorf("listing select options: %w", err)
	}
	return options, nil
}

// SelectActiveOption picks an option on the focused native <select> by exact
// text, falling back to exact value. Returns false when nothing matched.
func (s *Session) SelectActiveOption(ctx context.Context, choice string) (bool, error) {
	js := fmt.Sprintf(`(want => {
		const el = document.activeElement;
		if (!el || el.tagName !== 'SELECT') return false;
		let match = Array.from(el.options).find(o => (o.text || '').trim() === want);
		if (!match) match = Array.from(el.options).find(o => o.value === want);
		if (!match) return false;
		el.value = match.value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})(%s)`, jsonEncode(choice))
	var ok bool
	if err := s.eval(ctx, js, &ok); err != nil {
		return false, fmt.Errorf("selecting option %q: %w", choice, err)
	}
	return ok, nil
}

// ActiveDescendantText returns the text of the first descendant of the
// focused element matching the CSS selector, or "" when absent. Used to read
// the committed value back out of custom dropdown widgets.
func (s *Session) ActiveDescendantText(ctx context.Context, selector string) (string, error) {
	js := fmt.Sprintf(`(sel => {
		const el = document.activeElement;
		if (!el || el === document.body) return '';
		const hit = el.querySelector(sel);
		return hit ? (hit.innerText || hit.textContent || '').trim() : '';
	})(%s)`, jsonEncode(selector))
	var text string
	if err := s.eval(ctx, js, &text); err != nil {
		return "", fmt.Errorf("reading descendant %q of focused element: %w", selector, err)
	}
	return text, nil
}
