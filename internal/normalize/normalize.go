// Package normalize holds the two canonicalization rules everything else
// keys on: question text for the answer store and company names for the flow
// store. Both are idempotent; two strings that normalize identically are the
// same question (or company) everywhere in the system.
package normalize

import (
	"regexp"
	"strings"
)

var (
	trailingPunct = regexp.MustCompile(`[.:*?]+$`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	// Legal suffixes are only stripped at the end of the name, optionally
	// preceded by commas, periods or spaces and followed by trailing
	// punctuation ("Acme Corp." and "Acme Corp" key identically).
	legalSuffix = regexp.MustCompile(`[,.\s]*(inc|llc|ltd|corp|corporation|incorporated)[.\s]*$`)
)

// Question canonicalizes label/question text for answer-store lookup:
// lowercase, trailing label punctuation stripped, whitespace collapsed and
// trimmed.
func Question(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(strings.TrimSpace(text))
	s = trailingPunct.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CompanyKey canonicalizes a company name into the flow-store key: lowercase,
// legal suffix stripped, remaining spaces replaced with underscores. Returns
// "" for blank input, which callers treat as an unusable record.
func CompanyKey(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	key := strings.ToLower(name)
	key = strings.TrimSpace(legalSuffix.ReplaceAllString(key, ""))
	key = whitespaceRun.ReplaceAllString(key, "_")
	return key
}
