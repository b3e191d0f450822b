package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	ErrHierarchy = errors.New("node cannot be inserted here")
	ErrForeign   = errors.New("node belongs to another document")
)

// TargetKind classifies event targets
type TargetKind string

const (
	KindWindow   TargetKind = "window"
	KindDocument TargetKind = "document"
	KindElement  TargetKind = "element"
)

// Target is anything listeners can be attached to
type Target interface {
	AddEventListener(typ string, key interface{}, fn Handler, opts Options) bool
	RemoveEventListener(typ string, key interface{}, opts Options) bool
	ListenerCount(typ string) int
	Kind() TargetKind
	target() *eventTarget
}

// Window is the top-level event target
type Window struct {
	eventTarget
	doc *Document
}

// Kind implements Target
func (w *Window) Kind() TargetKind { return KindWindow }

// Document returns the window's document
func (w *Window) Document() *Document { return w.doc }

// Document is an HTML document with event targets.
// It is not safe for concurrent use; the sandbox host confines it to its
// event loop goroutine.
type Document struct {
	eventTarget
	root     *html.Node
	head     *html.Node
	body     *html.Node
	window   *Window
	elements map[*html.Node]*Element
}

// DefaultShell is the markup of an empty desktop
const DefaultShell = `<!DOCTYPE html><html><head><title>desktop</title></head><body><div id="desktop"></div></body></html>`

// New parses markup into a document
func New(markup string) (*Document, error) {
	if strings.TrimSpace(markup) == "" {
		markup = DefaultShell
	}
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	d := &Document{
		root:     root,
		elements: make(map[*html.Node]*Element),
	}
	d.window = &Window{doc: d}
	walk(root, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Head:
			if d.head == nil {
				d.head = n
			}
		case atom.Body:
			if d.body == nil {
				d.body = n
			}
		}
		return true
	})
	return d, nil
}

// Kind implements Target
func (d *Document) Kind() TargetKind { return KindDocument }

// Window returns the document's window
func (d *Document) Window() *Window { return d.window }

// Head returns the <head> element
func (d *Document) Head() *Element { return d.wrap(d.head) }

// Body returns the <body> element
func (d *Document) Body() *Element { return d.wrap(d.body) }

// DocumentElement returns the <html> element
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

// GetElementByID searches the whole document
func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return d.wrap(found)
}

// CreateElement creates a detached element owned by this document
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		tag = "div"
	}
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	return d.wrap(n)
}

// Element returns the stable wrapper for n
func (d *Document) Element(n *html.Node) *Element { return d.wrap(n) }

// Owns reports whether el is the live wrapper of its node
func (d *Document) Owns(el *Element) bool {
	return el != nil && d.elements[el.Node] == el
}

// Render serializes the whole document
func (d *Document) Render() string {
	var sb strings.Builder
	_ = html.Render(&sb, d.root)
	return sb.String()
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if e, ok := d.elements[n]; ok {
		return e
	}
	e := &Element{Node: n, doc: d}
	d.elements[n] = e
	return e
}

// forget drops cached wrappers for a removed subtree
func (d *Document) forget(n *html.Node) {
	walk(n, func(c *html.Node) bool {
		delete(d.elements, c)
		return true
	})
}

// walk visits n and its descendants depth-first until visit returns false
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
