package extract

import (
	"github.com/antchfx/htmlquery"
	"github.com/tidwall/gjson"

	"github.com/gearhound/price-engine/internal/rules"
)

// Value is the result of one extraction: a string, or a bool when the
// rule uses boolean interpretation (status rules).
type Value struct {
	Text   string
	Truth  bool
	IsBool bool
}

// Extract executes one rule against one document. found is false when
// the rule's selector/patterns produced nothing non-empty; the caller
// moves on to the next rule by priority.
func Extract(doc *Document, rule *rules.Rule) (Value, bool) {
	var raw string
	var found bool

	switch rule.Mode {
	case rules.ModeSelector:
		raw, found = extractXPath(doc, rule)
	case rules.ModeSelectorRegex:
		raw, found = extractRegex(doc, rule)
	case rules.ModeCSSSelector:
		raw, found = extractCSS(doc, rule)
	case rules.ModeJSONPath:
		raw, found = extractJSONPath(doc, rule)
	}

	if !found {
		return Value{}, false
	}

	if rule.AsBool {
		// Unmatched literals default to false, never an error.
		return Value{Truth: rule.TruthMatches(raw), IsBool: true}, true
	}
	return Value{Text: raw}, true
}

func extractXPath(doc *Document, rule *rules.Rule) (string, bool) {
	node, err := htmlquery.Query(doc.node, rule.Selector)
	if err != nil || node == nil {
		return "", false
	}
	if rule.Attribute != "" {
		val := htmlquery.SelectAttr(node, rule.Attribute)
		return val, val != ""
	}
	text := normalizeText(htmlquery.InnerText(node))
	return text, text != ""
}

func extractCSS(doc *Document, rule *rules.Rule) (string, bool) {
	sel := doc.doc.Find(rule.Selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	if rule.Attribute != "" {
		val, ok := sel.Attr(rule.Attribute)
		return val, ok && val != ""
	}
	text := normalizeText(sel.Text())
	return text, text != ""
}

// extractRegex resolves content as in selector mode, then applies the
// primary pattern and each fallback pattern in listed order. The value
// is capture group 1 of the first matching pattern. An empty selector
// targets the whole raw document, so patterns can reach inline scripts
// and embedded JSON that text extraction would flatten.
func extractRegex(doc *Document, rule *rules.Rule) (string, bool) {
	content := doc.raw
	if rule.Selector != "" {
		var ok bool
		content, ok = extractXPath(doc, rule)
		if !ok {
			return "", false
		}
	}

	for _, re := range rule.Patterns() {
		m := re.FindStringSubmatch(content)
		if len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

func extractJSONPath(doc *Document, rule *rules.Rule) (string, bool) {
	res := gjson.Get(doc.raw, rule.Selector)
	if !res.Exists() {
		return "", false
	}
	val := res.String()
	return val, val != ""
}
