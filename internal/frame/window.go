// Package frame models browsing contexts: a top window and its nested
// iframes, each with its own document and event loop. Windows interact
// only through postMessage and same-origin document access, mirroring the
// isolation a browser enforces between frames.
package frame

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/v0xg/formpilot/internal/dom"
	"github.com/v0xg/formpilot/internal/eventloop"
)

// ErrCrossOrigin is returned when a window reaches into a document of a
// different origin.
var ErrCrossOrigin = errors.New("blocked a frame from accessing a cross-origin frame")

// MessageEvent is a delivered postMessage.
type MessageEvent struct {
	Data   []byte
	Origin string
	Source *Window
}

// Script is code injected into a window. It runs on the window's loop.
type Script func(w *Window)

// Window is one browsing context.
type Window struct {
	url    *url.URL
	origin string
	doc    dom.Document
	loop   *eventloop.Loop
	parent *Window

	mu        sync.Mutex
	children  []*Window
	listeners []func(MessageEvent)
	globals   map[string]any
}

// NewTop creates a top-level window for doc at rawURL.
func NewTop(rawURL string, doc dom.Document) (*Window, error) {
	return newWindow(rawURL, doc, nil)
}

func newWindow(rawURL string, doc dom.Document, parent *Window) (*Window, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("window url %q: %w", rawURL, err)
	}
	return &Window{
		url:     u,
		origin:  originOf(u),
		doc:     doc,
		loop:    eventloop.New(),
		parent:  parent,
		globals: make(map[string]any),
	}, nil
}

// AttachFrame creates a child window for an iframe.
func (w *Window) AttachFrame(rawURL string, doc dom.Document) (*Window, error) {
	child, err := newWindow(rawURL, doc, w)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.children = append(w.children, child)
	w.mu.Unlock()
	return child, nil
}

func originOf(u *url.URL) string {
	if u.Scheme == "" || u.Host == "" {
		return "null"
	}
	return u.Scheme + "://" + u.Host
}

// URL returns the window's location.
func (w *Window) URL() string { return w.url.String() }

// Origin returns scheme://host[:port], or "null" for opaque origins.
func (w *Window) Origin() string { return w.origin }

// Path returns the location path.
func (w *Window) Path() string { return w.url.Path }

// Key identifies the window by origin and path, falling back to origin.
func (w *Window) Key() string {
	if p := w.Path(); p != "" && p != "/" {
		return w.origin + p
	}
	return w.origin
}

// Loop returns the window's event loop.
func (w *Window) Loop() *eventloop.Loop { return w.loop }

// Document returns the window's own document. Only code running inside
// the window may use it.
func (w *Window) Document() dom.Document { return w.doc }

// Parent returns the parent window; a top window is its own parent.
func (w *Window) Parent() *Window {
	if w.parent == nil {
		return w
	}
	return w.parent
}

// IsTop reports whether w is a top-level window.
func (w *Window) IsTop() bool { return w.parent == nil }

// Frames returns the direct child windows.
func (w *Window) Frames() []*Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Window(nil), w.children...)
}

// Walk calls fn for w and every descendant, depth first.
func (w *Window) Walk(fn func(*Window)) {
	fn(w)
	for _, c := range w.Frames() {
		c.Walk(fn)
	}
}

// SameOrigin reports whether w and other share an origin. Opaque origins
// never match.
func (w *Window) SameOrigin(other *Window) bool {
	return w.origin != "null" && w.origin == other.origin
}

// ContentDocument returns w's document as seen from requester.
func (w *Window) ContentDocument(requester *Window) (dom.Document, error) {
	if !w.SameOrigin(requester) {
		return nil, fmt.Errorf("%w: %s from %s", ErrCrossOrigin, w.origin, requester.origin)
	}
	return w.doc, nil
}

// InjectScript runs script inside w on behalf of requester, the way a
// page appends a script element to a same-origin frame's document.
func (w *Window) InjectScript(requester *Window, script Script) error {
	if _, err := w.ContentDocument(requester); err != nil {
		return err
	}
	return w.RunPrivileged(script)
}

// RunPrivileged runs script inside w regardless of origin. Only the
// extension's scripting capability may call it.
func (w *Window) RunPrivileged(script Script) error {
	if !w.loop.Post(func() { script(w) }) {
		return fmt.Errorf("inject into %s: window closed", w.URL())
	}
	return nil
}

// MarkOnce sets a global flag and reports whether it was previously unset.
func (w *Window) MarkOnce(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.globals[key]; ok {
		return false
	}
	w.globals[key] = true
	return true
}

// Global reads a global value.
func (w *Window) Global(key string) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.globals[key]
	return v, ok
}

// AddMessageListener registers fn for messages posted to w. fn runs on w's
// loop.
func (w *Window) AddMessageListener(fn func(MessageEvent)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// PostMessage delivers data to w from source. Messages whose targetOrigin
// is neither "*" nor w's origin are dropped, as browsers do.
func (w *Window) PostMessage(data []byte, targetOrigin string, source *Window) {
	if targetOrigin != "*" && targetOrigin != w.origin {
		return
	}
	payload := append([]byte(nil), data...)
	ev := MessageEvent{Data: payload, Source: source}
	if source != nil {
		ev.Origin = source.origin
	}
	w.loop.Post(func() {
		w.mu.Lock()
		listeners := make([]func(MessageEvent), len(w.listeners))
		copy(listeners, w.listeners)
		w.mu.Unlock()
		for _, fn := range listeners {
			fn(ev)
		}
	})
}

// Close stops w and its descendants.
func (w *Window) Close() {
	for _, c := range w.Frames() {
		c.Close()
	}
	w.loop.Close()
}
