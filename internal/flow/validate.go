// ABOUTME: Shared input validators for dialog flow steps
// ABOUTME: Thin wrappers over go-playground/validator Var rules

package flow

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/2389/podium/internal/fault"
)

var validate = validator.New()

// Text trims the input and enforces length bounds in runes.
func Text(min, max int) func(string) (string, error) {
	return func(input string) (string, error) {
		v := strings.TrimSpace(input)
		if err := validate.Var(v, fmt.Sprintf("required,min=%d,max=%d", min, max)); err != nil {
			return "", fault.Validationf("expected %d-%d characters", min, max)
		}
		return v, nil
	}
}

// CommaList splits on commas, trims and drops empty items, then enforces
// item-count bounds. The normalized value is the items re-joined with ", ".
func CommaList(minItems, maxItems int) func(string) (string, error) {
	return func(input string) (string, error) {
		items := SplitList(input)
		if len(items) < minItems || len(items) > maxItems {
			return "", fault.Validationf("expected %d-%d comma-separated items, got %d",
				minItems, maxItems, len(items))
		}
		return strings.Join(items, ", "), nil
	}
}

// SplitList splits comma-separated input into trimmed, non-empty items.
func SplitList(input string) []string {
	return lo.FilterMap(strings.Split(input, ","), func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)
		return item, item != ""
	})
}

// NumericID accepts a bare numeric identifier.
func NumericID(input string) (string, error) {
	v := strings.TrimSpace(input)
	if err := validate.Var(v, "required,numeric"); err != nil {
		return "", fault.Validationf("expected a numeric id")
	}
	return v, nil
}

// SlideLine parses "URL [title...]": the first token must be a URL, the rest
// becomes the slide title. The normalized value keeps the raw line.
func SlideLine(input string) (string, error) {
	line := strings.TrimSpace(input)
	url, _, _ := strings.Cut(line, " ")
	if err := validate.Var(url, "required,url"); err != nil {
		return "", fault.Validationf("expected a URL, optionally followed by a title")
	}
	return line, nil
}

// ParseSlideLine splits a validated slide line into url and title.
func ParseSlideLine(line string) (url, title string) {
	url, title, _ = strings.Cut(strings.TrimSpace(line), " ")
	return url, strings.TrimSpace(title)
}
