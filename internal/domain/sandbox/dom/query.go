package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// QueryAll returns descendants of e matching a CSS selector, in document
// order. An invalid selector matches nothing.
func (e *Element) QueryAll(selector string) []*Element {
	sel := goquery.NewDocumentFromNode(e.Node).Find(selector)
	out := make([]*Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if n := s.Get(0); n != nil && n != e.Node {
			out = append(out, e.doc.wrap(n))
		}
	})
	return out
}

// Query returns the first descendant matching selector, or nil
func (e *Element) Query(selector string) *Element {
	sel := goquery.NewDocumentFromNode(e.Node).Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return e.doc.wrap(sel.Get(0))
}

// FindByID returns the first descendant with the given id, or nil
func (e *Element) FindByID(id string) *Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	for c := e.Node.FirstChild; c != nil && found == nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && attr(n, "id") == id {
				found = n
				return false
			}
			return true
		})
	}
	return e.doc.wrap(found)
}

// XPath evaluates expr relative to e and keeps only element results that
// are descendants of e.
func (e *Element) XPath(expr string) ([]*Element, error) {
	nodes, err := htmlquery.QueryAll(e.Node, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode || n == e.Node {
			continue
		}
		w := e.doc.wrap(n)
		if e.Contains(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

// ByClass returns descendants carrying every class in names
func (e *Element) ByClass(names string) []*Element {
	want := strings.Fields(names)
	if len(want) == 0 {
		return nil
	}
	return e.collect(func(c *Element) bool {
		for _, n := range want {
			if !c.HasClass(n) {
				return false
			}
		}
		return true
	})
}

// ByTag returns descendants with the given tag name; "*" matches all
func (e *Element) ByTag(tag string) []*Element {
	tag = strings.ToLower(tag)
	return e.collect(func(c *Element) bool {
		return tag == "*" || c.Node.Data == tag
	})
}

// ByName returns descendants whose name attribute equals name
func (e *Element) ByName(name string) []*Element {
	return e.collect(func(c *Element) bool {
		v, ok := c.Attr("name")
		return ok && v == name
	})
}

func (e *Element) collect(match func(*Element) bool) []*Element {
	var out []*Element
	for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode {
				if w := e.doc.wrap(n); match(w) {
					out = append(out, w)
				}
			}
			return true
		})
	}
	return out
}
