package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div id="win-a"><ul><li class="item" id="one">1</li><li class="item">2</li></ul><button id="go">Go</button></div>
<div id="win-b"><li class="item" id="one">other</li></div>
</body></html>`

func newDoc(t *testing.T) *Document {
	t.Helper()
	d, err := New(page)
	require.NoError(t, err)
	return d
}

func TestQueryIsScopedToContainer(t *testing.T) {
	d := newDoc(t)
	a := d.GetElementByID("win-a")
	require.NotNil(t, a)

	items := a.QueryAll(".item")
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.True(t, a.Contains(it))
	}

	b := d.GetElementByID("win-b")
	one := b.FindByID("one")
	require.NotNil(t, one)
	assert.Equal(t, "other", one.TextContent())

	assert.Nil(t, a.Query("#missing"))
	assert.Empty(t, a.QueryAll("[[invalid"))
}

func TestQueryExcludesContainerItself(t *testing.T) {
	d := newDoc(t)
	a := d.GetElementByID("win-a")
	assert.Empty(t, a.QueryAll("div"))
	assert.Nil(t, a.FindByID("win-a"))
}

func TestXPathFiltersToDescendants(t *testing.T) {
	d := newDoc(t)
	a := d.GetElementByID("win-a")

	got, err := a.XPath("//li")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = a.XPath("//li[")
	assert.Error(t, err)
}

func TestWrapperIdentityIsStable(t *testing.T) {
	d := newDoc(t)
	assert.Same(t, d.GetElementByID("go"), d.GetElementByID("win-a").FindByID("go"))
}

func TestDispatchPhases(t *testing.T) {
	d := newDoc(t)
	btn := d.GetElementByID("go")
	var order []string

	record := func(name string) Handler {
		return func(*Event) { order = append(order, name) }
	}
	d.Window().AddEventListener("click", "wc", record("window-capture"), Options{Capture: true})
	d.AddEventListener("click", "dc", record("document-capture"), Options{Capture: true})
	btn.AddEventListener("click", "t", record("target"), Options{})
	btn.Parent().AddEventListener("click", "pb", record("parent-bubble"), Options{})
	d.AddEventListener("click", "db", record("document-bubble"), Options{})
	d.Window().AddEventListener("click", "wb", record("window-bubble"), Options{})

	Dispatch(btn, NewEvent("click", EventInit{Bubbles: true}))
	assert.Equal(t, []string{
		"window-capture", "document-capture", "target",
		"parent-bubble", "document-bubble", "window-bubble",
	}, order)
}

func TestStopPropagationAndPreventDefault(t *testing.T) {
	d := newDoc(t)
	btn := d.GetElementByID("go")
	var reached bool

	btn.AddEventListener("click", "stop", func(e *Event) {
		e.StopPropagation()
		e.PreventDefault()
	}, Options{})
	d.AddEventListener("click", "doc", func(*Event) { reached = true }, Options{})

	ok := Dispatch(btn, NewEvent("click", EventInit{Bubbles: true, Cancelable: true}))
	assert.False(t, ok)
	assert.False(t, reached)
}

func TestListenerRegistrationRules(t *testing.T) {
	d := newDoc(t)
	fn := func(*Event) {}

	assert.True(t, d.AddEventListener("keydown", "k", fn, Options{}))
	assert.False(t, d.AddEventListener("keydown", "k", fn, Options{}))
	assert.True(t, d.AddEventListener("keydown", "k", fn, Options{Capture: true}))
	assert.Equal(t, 2, d.ListenerCount("keydown"))

	assert.False(t, d.RemoveEventListener("keydown", "other", Options{}))
	assert.True(t, d.RemoveEventListener("keydown", "k", Options{Capture: true}))
	assert.Equal(t, 1, d.ListenerCount("keydown"))
}

func TestOnceListener(t *testing.T) {
	d := newDoc(t)
	calls := 0
	d.AddEventListener("ping", "once", func(*Event) { calls++ }, Options{Once: true})

	Dispatch(d, NewEvent("ping", EventInit{}))
	Dispatch(d, NewEvent("ping", EventInit{}))
	assert.Equal(t, 1, calls)
	assert.Zero(t, d.ListenerCount("ping"))
}

func TestMutation(t *testing.T) {
	d := newDoc(t)
	a := d.GetElementByID("win-a")

	p := d.CreateElement("p")
	p.SetTextContent("hello")
	p.AddClass("note")
	require.NoError(t, a.AppendChild(p))
	assert.True(t, p.IsConnected())
	assert.Equal(t, "P", p.TagName())
	assert.True(t, p.HasClass("note"))

	assert.ErrorIs(t, p.AppendChild(a), ErrHierarchy)

	require.NoError(t, a.SetInnerHTML(`<span id="s">x</span>`))
	assert.False(t, p.IsConnected())
	assert.Equal(t, `<span id="s">x</span>`, a.InnerHTML())
}

func TestDestroyDropsListeners(t *testing.T) {
	d := newDoc(t)
	a := d.GetElementByID("win-a")
	btn := a.FindByID("go")
	btn.AddEventListener("click", "x", func(*Event) {}, Options{})

	a.Destroy()
	assert.Zero(t, btn.ListenerCount(""))
	assert.Nil(t, d.GetElementByID("win-a"))
	assert.NotSame(t, btn, d.Element(btn.Node))
}

func TestSanitizer(t *testing.T) {
	s := NewSanitizer()
	out := s.Sanitize(`<div class="row" data-id="7"><script>alert(1)</script><button onclick="save()">Save</button><a onclick="fetch('x')">bad</a></div>`)

	assert.NotContains(t, out, "<script")
	assert.Contains(t, out, `onclick="save()"`)
	assert.NotContains(t, out, "fetch")
	assert.Contains(t, out, `data-id="7"`)
	assert.True(t, strings.Contains(out, `class="row"`))
}

func TestInlineCall(t *testing.T) {
	name, ok := InlineCall(" save(); ")
	assert.True(t, ok)
	assert.Equal(t, "save", name)

	_, ok = InlineCall("alert(document.cookie)")
	assert.False(t, ok)
}

func TestCollectors(t *testing.T) {
	d, err := New(`<html><body><div id="c"><input name="q" class="a b"><p class="a">x</p></div><input name="q"></body></html>`)
	require.NoError(t, err)
	c := d.GetElementByID("c")

	assert.Len(t, c.ByClass("a"), 2)
	assert.Len(t, c.ByClass("a b"), 1)
	assert.Empty(t, c.ByClass(" "))
	assert.Len(t, c.ByTag("INPUT"), 1)
	assert.Len(t, c.ByTag("*"), 2)
	assert.Len(t, c.ByName("q"), 1)
	assert.True(t, d.Owns(c))
}
