package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element wraps an element node. Wrappers are cached per document so the
// same node always yields the same *Element.
type Element struct {
	eventTarget
	Node *html.Node
	doc  *Document
}

// Kind implements Target
func (e *Element) Kind() TargetKind { return KindElement }

// Document returns the owning document
func (e *Element) Document() *Document { return e.doc }

// TagName returns the upper-case tag name
func (e *Element) TagName() string { return strings.ToUpper(e.Node.Data) }

// ID returns the id attribute
func (e *Element) ID() string { return attr(e.Node, "id") }

// ClassName returns the class attribute
func (e *Element) ClassName() string { return attr(e.Node, "class") }

// Attr returns an attribute value
func (e *Element) Attr(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute
func (e *Element) SetAttr(name, value string) {
	name = strings.ToLower(name)
	for i, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			e.Node.Attr[i].Val = value
			return
		}
	}
	e.Node.Attr = append(e.Node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute
func (e *Element) RemoveAttr(name string) {
	name = strings.ToLower(name)
	out := e.Node.Attr[:0]
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		out = append(out, a)
	}
	e.Node.Attr = out
}

// HasClass reports whether the class list contains name
func (e *Element) HasClass(name string) bool {
	for _, c := range strings.Fields(e.ClassName()) {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends name to the class list
func (e *Element) AddClass(name string) {
	if name == "" || e.HasClass(name) {
		return
	}
	e.SetAttr("class", strings.TrimSpace(e.ClassName()+" "+name))
}

// RemoveClass drops name from the class list
func (e *Element) RemoveClass(name string) {
	fields := strings.Fields(e.ClassName())
	out := fields[:0]
	for _, c := range fields {
		if c != name {
			out = append(out, c)
		}
	}
	e.SetAttr("class", strings.Join(out, " "))
}

// TextContent concatenates descendant text
func (e *Element) TextContent() string {
	var sb strings.Builder
	walk(e.Node, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		return true
	})
	return sb.String()
}

// SetTextContent replaces children with a single text node
func (e *Element) SetTextContent(text string) {
	e.clear()
	if text != "" {
		e.Node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// InnerHTML serializes the children
func (e *Element) InnerHTML() string {
	var sb strings.Builder
	for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// OuterHTML serializes the element itself
func (e *Element) OuterHTML() string {
	var sb strings.Builder
	_ = html.Render(&sb, e.Node)
	return sb.String()
}

// SetInnerHTML parses markup in the context of e and replaces its children.
// Callers are expected to sanitize untrusted markup first.
func (e *Element) SetInnerHTML(markup string) error {
	ctx := e.Node
	if ctx.DataAtom == 0 {
		ctx = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return err
	}
	e.clear()
	for _, n := range nodes {
		e.Node.AppendChild(n)
	}
	return nil
}

// Parent returns the parent element, or nil at the top of the tree
func (e *Element) Parent() *Element {
	return e.doc.wrap(e.Node.Parent)
}

// Children returns the element children
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

// Contains reports whether other is e or one of its descendants
func (e *Element) Contains(other *Element) bool {
	if other == nil {
		return false
	}
	for n := other.Node; n != nil; n = n.Parent {
		if n == e.Node {
			return true
		}
	}
	return false
}

// IsConnected reports whether the element is attached to its document
func (e *Element) IsConnected() bool {
	for n := e.Node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// AppendChild moves child to the end of e's children
func (e *Element) AppendChild(child *Element) error {
	if child == nil {
		return ErrHierarchy
	}
	if child.doc != e.doc {
		return ErrForeign
	}
	if child.Contains(e) {
		return ErrHierarchy
	}
	if child.Node.Parent != nil {
		child.Node.Parent.RemoveChild(child.Node)
	}
	e.Node.AppendChild(child.Node)
	return nil
}

// RemoveChild detaches child from e
func (e *Element) RemoveChild(child *Element) error {
	if child == nil || child.Node.Parent != e.Node {
		return ErrHierarchy
	}
	e.Node.RemoveChild(child.Node)
	return nil
}

// Remove detaches e from its parent
func (e *Element) Remove() {
	if e.Node.Parent != nil {
		e.Node.Parent.RemoveChild(e.Node)
	}
}

// Destroy detaches e and drops every cached wrapper in its subtree,
// together with their listeners.
func (e *Element) Destroy() {
	e.Remove()
	walk(e.Node, func(n *html.Node) bool {
		if w, ok := e.doc.elements[n]; ok {
			w.entries = nil
		}
		return true
	})
	e.doc.forget(e.Node)
}

func (e *Element) clear() {
	for c := e.Node.FirstChild; c != nil; {
		next := c.NextSibling
		e.Node.RemoveChild(c)
		c = next
	}
}
