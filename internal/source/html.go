package source

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// selector is a compound selector of the form "tag", ".class" or "tag.class".
type selector struct {
	tag   string
	class string
}

func parseSelector(s string) []selector {
	var chain []selector
	for _, part := range strings.Fields(s) {
		tag, class, _ := strings.Cut(part, ".")
		chain = append(chain, selector{tag: tag, class: class})
	}
	return chain
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.class != "" && !hasClass(n, s.class) {
		return false
	}
	return true
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// queryAll returns the descendants of root matching a descendant selector
// such as "div.search_hanja span.hanja", in document order.
func queryAll(root *html.Node, sel string) []*html.Node {
	if root == nil {
		return nil
	}
	chain := parseSelector(sel)
	if len(chain) == 0 {
		return nil
	}

	current := []*html.Node{root}
	for _, s := range chain {
		var next []*html.Node
		seen := make(map[*html.Node]bool)
		for _, n := range current {
			walk(n, func(d *html.Node) {
				if d != n && s.matches(d) && !seen[d] {
					seen[d] = true
					next = append(next, d)
				}
			})
		}
		current = next
	}
	return current
}

func queryFirst(root *html.Node, sel string) *html.Node {
	nodes := queryAll(root, sel)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// text returns the trimmed text content of n, or "" when n is nil.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	walk(n, func(d *html.Node) {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	})
	return strings.TrimSpace(b.String())
}

// textAfter returns the text of the siblings following n up to the next
// element, used when a value is a bare text node next to its label.
func textAfter(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for s := n.NextSibling; s != nil && s.Type == html.TextNode; s = s.NextSibling {
		b.WriteString(s.Data)
	}
	return strings.TrimSpace(b.String())
}

var digits = regexp.MustCompile(`\d+`)

// firstInt returns the first integer in s, or 0.
func firstInt(s string) int {
	m := digits.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
