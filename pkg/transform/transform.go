// Package transform normalizes raw model output before it is written back
// into the dataset: tag extraction with punctuation stripping, and case
// conversion with unconditional trimming.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// CaseMode selects the case normalization applied to model output.
type CaseMode string

const (
	CaseNone  CaseMode = "none"
	CaseUpper CaseMode = "upper"
	CaseLower CaseMode = "lower"
)

// ParseCaseMode validates a configured case mode. An empty string means
// CaseNone.
func ParseCaseMode(s string) (CaseMode, error) {
	switch CaseMode(strings.ToLower(s)) {
	case "", CaseNone:
		return CaseNone, nil
	case CaseUpper:
		return CaseUpper, nil
	case CaseLower:
		return CaseLower, nil
	default:
		return "", fmt.Errorf("unknown case mode %q (want none, upper or lower)", s)
	}
}

// Sanitize extracts the content strictly between the first <tag>...</tag>
// pair and strips all punctuation from it. Missing or empty input returns
// the missing sentinel without attempting the match, as does input with no
// matching tag pair or a match with nothing usable inside. A miss is a
// per-row data-quality signal, not an error.
func Sanitize(text, tag string) string {
	if dataset.IsMissing(text) {
		return dataset.Missing
	}

	pattern := `(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`
	m := regexp.MustCompile(pattern).FindStringSubmatch(text)
	if m == nil {
		return dataset.Missing
	}

	cleaned := stripPunctuation(m[1])
	if strings.TrimSpace(cleaned) == "" {
		return dataset.Missing
	}
	return cleaned
}

// CaseConvert trims surrounding whitespace unconditionally and then applies
// the requested case mode. The missing sentinel passes through unchanged.
func CaseConvert(text string, mode CaseMode) string {
	if dataset.IsMissing(text) {
		return dataset.Missing
	}
	trimmed := strings.TrimSpace(text)
	switch mode {
	case CaseUpper:
		return strings.ToUpper(trimmed)
	case CaseLower:
		return strings.ToLower(trimmed)
	default:
		return trimmed
	}
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
}
