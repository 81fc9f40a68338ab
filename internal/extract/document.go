package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document wraps one fetched response body. The same body can be
// addressed as an HTML node tree (selector modes), a goquery document
// (css-selector mode) or raw text (json-path and whole-document regex).
type Document struct {
	raw  string
	node *html.Node
	doc  *goquery.Document
}

// ParseDocument parses a response body into a Document. The HTML tree is
// built eagerly; html.Parse is lenient, so even JSON bodies parse (their
// content ends up as text nodes), which keeps json-path rules working on
// the raw form.
func ParseDocument(body string) (*Document, error) {
	node, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{
		raw:  body,
		node: node,
		doc:  goquery.NewDocumentFromNode(node),
	}, nil
}

// Raw returns the unparsed response body.
func (d *Document) Raw() string { return d.raw }

// normalizeText collapses runs of whitespace to single spaces and trims.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
