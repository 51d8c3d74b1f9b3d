package browser

import (
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/v0xg/formpilot/internal/dom"
)

// Document is a dom.Document backed by a live page or frame. Every call is
// a CDP round trip; failures read as absent values.
type Document struct {
	page *rod.Page
}

var _ dom.Document = (*Document)(nil)

// NewDocument wraps a page or an iframe's frame page.
func NewDocument(page *rod.Page) *Document {
	return &Document{page: page}
}

// Page returns the underlying rod page.
func (d *Document) Page() *rod.Page { return d.page }

func (d *Document) QueryAll(tags ...string) []dom.Element {
	els, err := d.page.Elements(strings.Join(tags, ","))
	if err != nil {
		return nil
	}
	return d.wrapAll(els)
}

const byIDJS = `(id) => {
	const el = document.getElementById(id);
	return el ? [el] : [];
}`

func (d *Document) ByID(id string) dom.Element {
	return d.first(rod.Eval(byIDJS, id))
}

func (d *Document) LabelFor(id string) dom.Element {
	return d.first(rod.Eval(`(id) => {
		return Array.from(document.querySelectorAll('label')).filter(l => l.htmlFor === id).slice(0, 1);
	}`, id))
}

// Loaded is always true: pages are handed out after Settle.
func (d *Document) Loaded() bool { return true }

func (d *Document) first(opts *rod.EvalOptions) dom.Element {
	if el := d.firstElement(opts); el != nil {
		return el
	}
	return nil
}

func (d *Document) firstElement(opts *rod.EvalOptions) *Element {
	els, err := d.page.ElementsByJS(opts)
	if err != nil || len(els) == 0 {
		return nil
	}
	return d.wrap(els[0])
}

func (d *Document) wrap(el *rod.Element) *Element {
	return &Element{el: el, doc: d}
}

func (d *Document) wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, d.wrap(el))
	}
	return out
}

// bindingName is the page function the mutation observer reports through.
const bindingName = "__formpilotMutation"

const observerJS = `() => {
	if (window.__formpilotObserver) return;
	const report = window.` + bindingName + `;
	window.__formpilotObserver = new MutationObserver(muts => {
		const tags = [];
		for (const m of muts) {
			m.addedNodes.forEach(n => {
				if (n.nodeType !== 1) return;
				tags.push(n.tagName.toLowerCase());
				n.querySelectorAll('*').forEach(c => tags.push(c.tagName.toLowerCase()));
			});
		}
		if (tags.length) report(tags);
	});
	window.__formpilotObserver.observe(document.documentElement, {childList: true, subtree: true});
}`

// LiveDocument is the top-level page document. It also reports mutations.
type LiveDocument struct {
	*Document

	mu        sync.Mutex
	observers map[int]func(dom.Mutation)
	next      int
	installed bool
}

var _ dom.Observable = (*LiveDocument)(nil)

// NewLiveDocument wraps a top-level page.
func NewLiveDocument(page *rod.Page) *LiveDocument {
	return &LiveDocument{
		Document:  NewDocument(page),
		observers: make(map[int]func(dom.Mutation)),
	}
}

// Observe installs the page observer on first use.
func (d *LiveDocument) Observe(fn func(dom.Mutation)) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.observers[id] = fn
	install := !d.installed
	d.installed = true
	d.mu.Unlock()

	if install {
		if err := d.install(); err != nil {
			d.mu.Lock()
			d.installed = false
			d.mu.Unlock()
		}
	}
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

func (d *LiveDocument) install() error {
	_, err := d.page.Expose(bindingName, func(arg gson.JSON) (interface{}, error) {
		var m dom.Mutation
		for _, t := range arg.Arr() {
			m.AddedTags = append(m.AddedTags, t.Str())
		}
		d.notify(m)
		return nil, nil
	})
	if err != nil {
		return err
	}
	_, err = d.page.Eval(observerJS)
	return err
}

func (d *LiveDocument) notify(m dom.Mutation) {
	d.mu.Lock()
	fns := make([]func(dom.Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

// OnLoad never fires: live documents are already loaded.
func (d *LiveDocument) OnLoad(func()) {}

// Element is a dom.Element backed by a remote element handle.
type Element struct {
	el  *rod.Element
	doc *Document
}

var _ dom.Element = (*Element)(nil)

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) eval(js string, args ...interface{}) gson.JSON {
	res, err := e.el.Eval(js, args...)
	if err != nil {
		return gson.New(nil)
	}
	return res.Value
}

func (e *Element) Tag() string {
	return strings.ToLower(e.eval(`() => this.tagName`).Str())
}

func (e *Element) Attr(name string) string {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (e *Element) HasAttr(name string) bool {
	v, err := e.el.Attribute(name)
	return err == nil && v != nil
}

func (e *Element) Type() string {
	return strings.ToLower(strings.TrimSpace(e.Attr("type")))
}

func (e *Element) Disabled() bool { return e.eval(`() => !!this.disabled`).Bool() }

func (e *Element) ReadOnly() bool { return e.eval(`() => !!this.readOnly`).Bool() }

func (e *Element) MaxLength() int {
	v := e.eval(`() => (typeof this.maxLength === 'number' ? this.maxLength : -1)`)
	if v.Nil() {
		return -1
	}
	return v.Int()
}

func (e *Element) Value() string {
	return e.eval(`() => (this.value === undefined ? '' : String(this.value))`).Str()
}

func (e *Element) Text() string {
	return e.eval(`() => this.textContent || ''`).Str()
}

func (e *Element) Rect() dom.Rect {
	v := e.eval(`() => {
		const r = this.getBoundingClientRect();
		return {w: r.width, h: r.height};
	}`)
	return dom.Rect{Width: v.Get("w").Num(), Height: v.Get("h").Num()}
}

func (e *Element) Parent() dom.Element {
	p, err := e.el.Parent()
	if err != nil {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *Element) Closest(tag string) dom.Element {
	p, err := e.el.ElementByJS(rod.Eval(`(tag) => this.parentElement ? this.parentElement.closest(tag) : null`, tag))
	if err != nil {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *Element) First(tag string) dom.Element {
	els, err := e.el.Elements(tag)
	if err != nil || len(els) == 0 {
		return nil
	}
	return e.doc.wrap(els[0])
}

func (e *Element) Focus() error { return e.el.Focus() }

func (e *Element) Blur() error { return e.el.Blur() }

func (e *Element) SetNativeValue(v string) error {
	_, err := e.el.Eval(`(v) => {
		const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(this), 'value');
		if (desc && desc.set) {
			desc.set.call(this, v);
		} else {
			this.value = v;
		}
	}`, v)
	return err
}

func (e *Element) Dispatch(event string, bubbles bool) error {
	_, err := e.el.Eval(`(type, bubbles) => {
		this.dispatchEvent(new Event(type, {bubbles: bubbles}));
	}`, event, bubbles)
	return err
}
