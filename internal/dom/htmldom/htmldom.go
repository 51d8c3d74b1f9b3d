// Package htmldom is a static dom.Document host backed by goquery. Element
// values are mutable and every dispatched event is recorded, which makes it
// suitable for scanning saved pages and for exercising fill logic without a
// browser.
package htmldom

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/v0xg/formpilot/internal/dom"
)

// DefaultRect is the box assumed for an element with no layout hints.
var DefaultRect = dom.Rect{Width: 200, Height: 24}

// Event is one recorded interaction.
type Event struct {
	Target dom.Element
	Type   string
}

// Option configures a parsed Document.
type Option func(*Document)

// Loading marks the document as still loading; call FinishLoad to fire
// load listeners.
func Loading() Option {
	return func(d *Document) { d.loaded = false }
}

// Document is a goquery-backed dom.Document.
type Document struct {
	mu        sync.RWMutex
	doc       *goquery.Document
	values    map[*html.Node]string
	events    []Event
	focused   *html.Node
	loaded    bool
	observers map[int]func(dom.Mutation)
	nextObs   int
	onLoad    []func()
}

var _ dom.Document = (*Document)(nil)
var _ dom.Observable = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{
		doc:       doc,
		values:    make(map[*html.Node]string),
		loaded:    true,
		observers: make(map[int]func(dom.Mutation)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// MustParse parses an HTML string and panics on failure. Intended for tests.
func MustParse(s string, opts ...Option) *Document {
	d, err := Parse(strings.NewReader(s), opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(tags ...string) []dom.Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []dom.Element
	d.doc.Find(strings.Join(tags, ",")).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s.Nodes[0]))
	})
	return out
}

// ByID implements dom.Document.
func (d *Document) ByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found *html.Node
	d.doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s.Nodes[0]
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return d.wrap(found)
}

// LabelFor implements dom.Document.
func (d *Document) LabelFor(id string) dom.Element {
	if id == "" {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found *html.Node
	d.doc.Find("label[for]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("for"); v == id {
			found = s.Nodes[0]
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return d.wrap(found)
}

// Loaded implements dom.Document.
func (d *Document) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// OnLoad implements dom.Observable.
func (d *Document) OnLoad(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return
	}
	d.onLoad = append(d.onLoad, fn)
}

// FinishLoad marks the document loaded and fires load listeners.
func (d *Document) FinishLoad() {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return
	}
	d.loaded = true
	listeners := d.onLoad
	d.onLoad = nil
	d.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Observe implements dom.Observable.
func (d *Document) Observe(fn func(dom.Mutation)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// Append parses fragment and appends it to the first element matching
// selector, notifying observers.
func (d *Document) Append(selector, fragment string) error {
	d.mu.Lock()
	target := d.doc.Find(selector).First()
	if target.Length() == 0 {
		d.mu.Unlock()
		return fmt.Errorf("append: no element matches %q", selector)
	}
	parent := target.Nodes[0]
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("append: parse fragment: %w", err)
	}
	var m dom.Mutation
	for _, n := range nodes {
		parent.AppendChild(n)
		collectTags(n, &m.AddedTags)
	}
	observers := make([]func(dom.Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	if len(m.AddedTags) == 0 {
		return nil
	}
	for _, fn := range observers {
		fn(m)
	}
	return nil
}

// Events returns a copy of the recorded event log.
func (d *Document) Events() []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Event(nil), d.events...)
}

// Find returns the first element matching a CSS selector, or nil.
func (d *Document) Find(selector string) dom.Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil
	}
	return d.wrap(s.Nodes[0])
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, node: n}
}

func collectTags(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode {
		*out = append(*out, strings.ToLower(n.Data))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTags(c, out)
	}
}

// Element is a dom.Element over an html.Node.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

// Node returns the underlying node.
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) Tag() string { return strings.ToLower(e.node.Data) }

func (e *Element) Attr(name string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	v, _ := attr(e.node, name)
	return v
}

func (e *Element) HasAttr(name string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	_, ok := attr(e.node, name)
	return ok
}

func (e *Element) Type() string {
	return strings.ToLower(strings.TrimSpace(e.Attr("type")))
}

func (e *Element) Disabled() bool { return e.HasAttr("disabled") }

func (e *Element) ReadOnly() bool { return e.HasAttr("readonly") }

func (e *Element) MaxLength() int {
	raw := strings.TrimSpace(e.Attr("maxlength"))
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (e *Element) Value() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if v, ok := e.doc.values[e.node]; ok {
		return v
	}
	if e.node.Data == "textarea" {
		return textOf(e.node)
	}
	v, _ := attr(e.node, "value")
	return v
}

func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.textWithValues(e.node)
}

// textWithValues renders text content, substituting live values for
// textareas so label text reflects what the user sees.
func (e *Element) textWithValues(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && n.Data == "textarea" {
			if v, ok := e.doc.values[n]; ok {
				b.WriteString(v)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func (e *Element) Rect() dom.Rect {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if _, ok := attr(n, "hidden"); ok {
			return dom.Rect{}
		}
		style := parseStyle(n)
		if style["display"] == "none" {
			return dom.Rect{}
		}
	}
	r := DefaultRect
	style := parseStyle(e.node)
	if w, ok := pixels(style["width"]); ok {
		r.Width = w
	}
	if h, ok := pixels(style["height"]); ok {
		r.Height = h
	}
	return r
}

func (e *Element) Parent() dom.Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *Element) Closest(tag string) dom.Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := e.node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
			return e.doc.wrap(n)
		}
	}
	return nil
}

func (e *Element) First(tag string) dom.Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	s := goquery.NewDocumentFromNode(e.node).Find(tag).First()
	if s.Length() == 0 {
		return nil
	}
	return e.doc.wrap(s.Nodes[0])
}

func (e *Element) Focus() error {
	e.doc.mu.Lock()
	e.doc.focused = e.node
	e.doc.events = append(e.doc.events, Event{Target: e, Type: "focus"})
	e.doc.mu.Unlock()
	return nil
}

func (e *Element) Blur() error {
	e.doc.mu.Lock()
	if e.doc.focused == e.node {
		e.doc.focused = nil
	}
	e.doc.events = append(e.doc.events, Event{Target: e, Type: "blur"})
	e.doc.mu.Unlock()
	return nil
}

func (e *Element) SetNativeValue(v string) error {
	e.doc.mu.Lock()
	e.doc.values[e.node] = v
	e.doc.mu.Unlock()
	return nil
}

func (e *Element) Dispatch(event string, _ bool) error {
	e.doc.mu.Lock()
	e.doc.events = append(e.doc.events, Event{Target: e, Type: event})
	e.doc.mu.Unlock()
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func parseStyle(n *html.Node) map[string]string {
	raw, ok := attr(n, "style")
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(raw, ";") {
		k, v, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func pixels(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
