package sample

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/agentstation/quorum/pkg/errors"
)

// selector is a small CSS subset: whitespace separated compounds of
// tag, #id, .class, [attr] and [attr=value], matched as descendants.
type selector []compound

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	key    string
	val    string
	hasVal bool
}

func parseSelector(s string) (selector, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return nil, errors.NewValidationError("selector", s, "empty selector")
	}
	sel := make(selector, 0, len(parts))
	for _, p := range parts {
		c, err := parseCompound(p)
		if err != nil {
			return nil, err
		}
		sel = append(sel, c)
	}
	return sel, nil
}

func parseCompound(p string) (compound, error) {
	var c compound
	i := strings.IndexAny(p, "#.[")
	if i < 0 {
		c.tag = strings.ToLower(p)
		return c, nil
	}
	c.tag = strings.ToLower(p[:i])
	rest := p[i:]
	for rest != "" {
		switch rest[0] {
		case '#', '.':
			end := strings.IndexAny(rest[1:], "#.[")
			name := rest[1:]
			if end >= 0 {
				name = rest[1 : end+1]
			}
			if name == "" {
				return c, errors.NewValidationError("selector", p, "empty id or class")
			}
			if rest[0] == '#' {
				c.id = name
			} else {
				c.classes = append(c.classes, name)
			}
			rest = rest[1+len(name):]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return c, errors.NewValidationError("selector", p, "unterminated attribute")
			}
			body := rest[1:end]
			key, val, hasVal := strings.Cut(body, "=")
			if key == "" {
				return c, errors.NewValidationError("selector", p, "empty attribute name")
			}
			c.attrs = append(c.attrs, attrMatch{
				key:    key,
				val:    strings.Trim(val, `"'`),
				hasVal: hasVal,
			})
			rest = rest[end+1:]
		default:
			return c, errors.NewValidationError("selector", p, "unexpected character")
		}
	}
	return c, nil
}

func (c compound) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	for _, cl := range c.classes {
		if !hasClass(n, cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := lookupAttr(n, a.key)
		if !ok || (a.hasVal && v != a.val) {
			return false
		}
	}
	return true
}

func (s selector) match(n *html.Node) bool {
	if !s[len(s)-1].match(n) {
		return false
	}
	i := len(s) - 2
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if s[i].match(p) {
			i--
		}
	}
	return i < 0
}

// all returns every node under root matching s, in document order.
func (s selector) all(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if s.match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// first returns the first node under root matching s.
func (s selector) first(root *html.Node) *html.Node {
	if s.match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := s.first(c); n != nil {
			return n
		}
	}
	return nil
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// text returns the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}
