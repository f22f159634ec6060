package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

// selector locates an outlet's main content node: an element tag, optionally
// narrowed by an attribute whose value contains a marker string.
type selector struct {
	Tag      string
	Attr     string
	Contains string
}

// outletRules maps outlet domains to their content selectors, most specific
// first. Rules reflect the markup each outlet used when added; extraction
// falls through to genericRules when none produce enough text.
var outletRules = map[string][]selector{
	"reuters.com": {
		{Tag: "div", Attr: "class", Contains: "article-body"},
		{Tag: "div", Attr: "data-testid", Contains: "paragraph"},
	},
	"apnews.com": {
		{Tag: "div", Attr: "class", Contains: "RichTextStoryBody"},
		{Tag: "div", Attr: "class", Contains: "Article"},
	},
	"politico.com": {
		{Tag: "div", Attr: "class", Contains: "story-text"},
		{Tag: "p", Attr: "class", Contains: "story-text__paragraph"},
	},
	"thehill.com": {
		{Tag: "div", Attr: "class", Contains: "article__text"},
	},
	"npr.org": {
		{Tag: "div", Attr: "id", Contains: "storytext"},
	},
	"axios.com": {
		{Tag: "div", Attr: "class", Contains: "story-body"},
	},
	"rollcall.com": {
		{Tag: "div", Attr: "class", Contains: "article-content"},
	},
}

// genericRules are the increasingly loose fallbacks tried for every outlet.
var genericRules = []selector{
	{Tag: "article"},
	{Tag: "main"},
	{Tag: "div", Attr: "role", Contains: "main"},
	{Tag: "body"},
}

// rulesFor returns the selector chain for a domain: outlet-specific rules
// first, then the generic fallbacks.
func rulesFor(domain string) []selector {
	specific := outletRules[domain]
	rules := make([]selector, 0, len(specific)+len(genericRules))
	rules = append(rules, specific...)
	rules = append(rules, genericRules...)
	return rules
}

func (sel selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != sel.Tag {
		return false
	}
	if sel.Attr == "" {
		return true
	}
	for _, a := range n.Attr {
		if a.Key == sel.Attr && strings.Contains(a.Val, sel.Contains) {
			return true
		}
	}
	return false
}

// findNode returns the first node in document order matching sel.
func findNode(root *html.Node, sel selector) *html.Node {
	if sel.matches(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, sel); found != nil {
			return found
		}
	}
	return nil
}

// skipTags are non-content elements excluded from text extraction.
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true, "figure": true,
}

// extractText collects the readable text beneath a node, inserting breaks
// after block elements and collapsing whitespace.
func extractText(root *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br":
				sb.WriteString("\n")
			}
		}
	}
	walk(root)
	return strings.Join(strings.Fields(sb.String()), " ")
}
