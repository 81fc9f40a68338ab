package rules

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrUnknownMode      = errors.New("unknown extraction mode")
	ErrUnknownField     = errors.New("unknown field type")
	ErrMissingSelector  = errors.New("selector is required for this mode")
	ErrMissingPattern   = errors.New("regex pattern is required for selector+regex mode")
	ErrInvalidPattern   = errors.New("invalid regex pattern")
	ErrInvalidTransform = errors.New("invalid post-processing transform")
)

// FieldType identifies one of the three extractable facts per scrape.
type FieldType string

const (
	FieldPrice    FieldType = "price"
	FieldStatus   FieldType = "status"
	FieldShipping FieldType = "shipping"

	// FieldCurrency and FieldRegion are market-detection fields: they
	// read the response's own currency/region markers for multi-market
	// validation and are not tracked facts themselves.
	FieldCurrency FieldType = "currency"
	FieldRegion   FieldType = "region"
)

// Fields lists the tracked field types in extraction order.
var Fields = []FieldType{FieldPrice, FieldStatus, FieldShipping}

// Mode is the extraction mode of a rule.
type Mode string

const (
	ModeSelector      Mode = "selector"
	ModeSelectorRegex Mode = "selector+regex"
	ModeCSSSelector   Mode = "css-selector"
	ModeJSONPath      Mode = "json-path"
)

// TransformKind names a post-processing transform.
type TransformKind string

const (
	TransformTrim          TransformKind = "trim"
	TransformStripCurrency TransformKind = "strip-currency-symbols"
	TransformRegexReplace  TransformKind = "regex-replace"
)

// Transform is one step of a rule's post-processing chain. Only
// regex-replace carries parameters.
type Transform struct {
	Kind        TransformKind
	Pattern     string
	Replacement string

	re *regexp.Regexp
}

// Regexp returns the compiled regex-replace pattern, nil for other kinds.
func (t *Transform) Regexp() *regexp.Regexp { return t.re }

// Rule is one compiled extraction rule, bound to a scraper config and a
// field type. Rules for the same (scraper, field) are evaluated strictly
// by ascending priority.
type Rule struct {
	ScraperID string
	Field     FieldType
	Priority  int
	Mode      Mode

	// Selector is an XPath expression for selector/selector+regex modes,
	// a CSS selector for css-selector mode, and a dotted path for
	// json-path mode. It may be empty in selector+regex mode, in which
	// case the regex runs against the whole document text.
	Selector  string
	Attribute string

	// Pattern and FallbackPatterns apply to selector+regex mode only.
	// The value is capture group 1 of the first matching pattern.
	Pattern          string
	FallbackPatterns []string

	// AsBool switches the extractor to boolean interpretation: the raw
	// string is compared, trimmed and case-insensitively, against
	// TrueLiterals. Used for status rules.
	AsBool       bool
	TrueLiterals []string

	Transforms []Transform

	pattern   *regexp.Regexp
	fallbacks []*regexp.Regexp
	truths    map[string]struct{}
}

// Patterns returns the compiled primary pattern followed by the compiled
// fallbacks, in evaluation order.
func (r *Rule) Patterns() []*regexp.Regexp {
	if r.pattern == nil {
		return nil
	}
	return append([]*regexp.Regexp{r.pattern}, r.fallbacks...)
}

// TruthMatches reports whether raw matches one of the rule's true
// literals, trimmed and case-insensitively.
func (r *Rule) TruthMatches(raw string) bool {
	_, ok := r.truths[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// Compile validates the rule and compiles its regular expressions.
// Malformed rules are rejected here, at configuration-load time, rather
// than ignored at run time.
func (r *Rule) Compile() error {
	switch r.Field {
	case FieldPrice, FieldStatus, FieldShipping, FieldCurrency, FieldRegion:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, r.Field)
	}

	switch r.Mode {
	case ModeSelector, ModeCSSSelector, ModeJSONPath:
		if strings.TrimSpace(r.Selector) == "" {
			return fmt.Errorf("%w: mode %q", ErrMissingSelector, r.Mode)
		}
	case ModeSelectorRegex:
		if r.Pattern == "" {
			return ErrMissingPattern
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, r.Mode)
	}

	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, r.Pattern, err)
		}
		r.pattern = re
	}
	r.fallbacks = r.fallbacks[:0]
	for _, p := range r.FallbackPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: fallback %q: %v", ErrInvalidPattern, p, err)
		}
		r.fallbacks = append(r.fallbacks, re)
	}

	r.truths = make(map[string]struct{}, len(r.TrueLiterals))
	for _, lit := range r.TrueLiterals {
		r.truths[strings.ToLower(strings.TrimSpace(lit))] = struct{}{}
	}

	for i := range r.Transforms {
		t := &r.Transforms[i]
		switch t.Kind {
		case TransformTrim, TransformStripCurrency:
		case TransformRegexReplace:
			re, err := regexp.Compile(t.Pattern)
			if err != nil {
				return fmt.Errorf("%w: regex-replace %q: %v", ErrInvalidTransform, t.Pattern, err)
			}
			t.re = re
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransform, t.Kind)
		}
	}

	return nil
}

// CompileAll compiles every rule in the set and returns the first error.
func CompileAll(set []*Rule) error {
	for _, r := range set {
		if err := r.Compile(); err != nil {
			return fmt.Errorf("rule %s/%s prio %d: %w", r.ScraperID, r.Field, r.Priority, err)
		}
	}
	return nil
}

// ForField filters rules for one field type, sorted by ascending priority.
// The sort is stable so rules sharing a priority keep insertion order.
func ForField(set []*Rule, field FieldType) []*Rule {
	out := make([]*Rule, 0, len(set))
	for _, r := range set {
		if r.Field == field {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
