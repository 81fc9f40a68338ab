package extract

import (
	"errors"
	"sort"

	"github.com/gearhound/price-engine/internal/rules"
)

// ErrNotFound reports that no rule in a field's list produced a value.
// This is not fatal by itself; the field is simply absent for this scrape.
var ErrNotFound = errors.New("no extraction rule matched")

// Run tries a field's rules in strict ascending-priority order and
// returns the first non-empty value. Rules sharing a priority keep their
// insertion order. Boolean values bypass post-processing; string values
// have the winning rule's transform chain applied. Evaluation stops at
// the first success: later rules never override an earlier match.
func Run(doc *Document, ruleList []*rules.Rule) (Value, error) {
	ordered := make([]*rules.Rule, len(ruleList))
	copy(ordered, ruleList)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, rule := range ordered {
		val, found := Extract(doc, rule)
		if !found {
			continue
		}
		if val.IsBool {
			return val, nil
		}
		val.Text = PostProcess(val.Text, rule.Transforms)
		if val.Text == "" {
			continue
		}
		return val, nil
	}
	return Value{}, ErrNotFound
}
