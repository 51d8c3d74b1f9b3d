// Package extension provides the runtime messaging channel between the
// background context and per-tab content scripts, plus the privileged
// browser capabilities (badge, scripting) the background owns.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/v0xg/formpilot/internal/eventloop"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/protocol"
)

var (
	// ErrNoReceiver is returned when nothing listens on the other end,
	// e.g. a tab whose content script never loaded.
	ErrNoReceiver = errors.New("could not establish connection: receiving end does not exist")
	// ErrTabClosed is returned for messages to a removed tab.
	ErrTabClosed = errors.New("tab closed")
)

// TabID identifies a browser tab.
type TabID int

// NoTab marks senders outside any tab, such as the popup.
const NoTab TabID = -1

// Sender describes where a runtime message came from.
type Sender struct {
	TabID TabID
	URL   string
}

// Handler answers one runtime message. A nil reply resolves to null.
type Handler func(ctx context.Context, msg protocol.RuntimeMessage, sender Sender) (any, error)

type endpoint struct {
	loop    *eventloop.Loop
	handler Handler
}

// Hub routes runtime messages. Messages are serialised on send and decoded
// on the receiver's loop, so contexts never share values.
type Hub struct {
	mu         sync.RWMutex
	background *endpoint
	tabs       map[TabID]*endpoint
	closed     map[TabID]bool
	log        *logger.Logger
}

// NewHub returns an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		tabs:   make(map[TabID]*endpoint),
		closed: make(map[TabID]bool),
		log:    log.WithComponent("hub"),
	}
}

// ServeBackground registers the background handler.
func (h *Hub) ServeBackground(loop *eventloop.Loop, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.background = &endpoint{loop: loop, handler: handler}
}

// ServeTab registers a tab's top-frame content script.
func (h *Hub) ServeTab(tab TabID, loop *eventloop.Loop, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs[tab] = &endpoint{loop: loop, handler: handler}
	delete(h.closed, tab)
}

// RemoveTab unregisters a tab. Later sends fail with ErrTabClosed.
func (h *Hub) RemoveTab(tab TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tabs, tab)
	h.closed[tab] = true
}

// SendToBackground sends msg to the background context.
func (h *Hub) SendToBackground(ctx context.Context, sender Sender, msg protocol.RuntimeMessage) *Call {
	h.mu.RLock()
	ep := h.background
	h.mu.RUnlock()
	if ep == nil {
		return failed(ErrNoReceiver)
	}
	return h.deliver(ctx, ep, sender, msg)
}

// SendToTab sends msg to a tab's top frame.
func (h *Hub) SendToTab(ctx context.Context, tab TabID, msg protocol.RuntimeMessage) *Call {
	h.mu.RLock()
	ep, ok := h.tabs[tab]
	closed := h.closed[tab]
	h.mu.RUnlock()
	switch {
	case ok:
		return h.deliver(ctx, ep, Sender{TabID: NoTab}, msg)
	case closed:
		return failed(fmt.Errorf("tab %d: %w", tab, ErrTabClosed))
	default:
		return failed(fmt.Errorf("tab %d: %w", tab, ErrNoReceiver))
	}
}

func (h *Hub) deliver(ctx context.Context, ep *endpoint, sender Sender, msg protocol.RuntimeMessage) *Call {
	data, err := protocol.EncodeRuntime(msg)
	if err != nil {
		return failed(err)
	}

	call := newCall(ep.loop.Closed())
	posted := ep.loop.Post(func() {
		decoded, err := protocol.DecodeRuntime(data)
		if err != nil {
			call.resolve(nil, err)
			return
		}
		reply, err := ep.handler(ctx, decoded, sender)
		if err != nil {
			call.resolve(nil, err)
			return
		}
		raw, err := protocol.EncodeReply(reply)
		call.resolve(raw, err)
	})
	if !posted {
		return failed(ErrNoReceiver)
	}
	h.log.Trace().Str("type", string(msg.Type())).Int("sender_tab", int(sender.TabID)).Msg("message queued")
	return call
}

// Call is a pending request/response round trip.
type Call struct {
	done     chan struct{}
	receiver <-chan struct{}
	once     sync.Once
	reply    json.RawMessage
	err      error
}

func newCall(receiver <-chan struct{}) *Call {
	return &Call{done: make(chan struct{}), receiver: receiver}
}

func failed(err error) *Call {
	c := newCall(nil)
	c.resolve(nil, err)
	return c
}

func (c *Call) resolve(reply json.RawMessage, err error) {
	c.once.Do(func() {
		c.reply, c.err = reply, err
		close(c.done)
	})
}

// Wait blocks until the reply arrives, the receiver goes away, or ctx ends.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.reply, c.err
	case <-c.receiver:
		select {
		case <-c.done:
			return c.reply, c.err
		default:
			return nil, ErrNoReceiver
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then waits in the background and runs fn with the outcome on l. Use it
// from loop code instead of Wait, which would block the loop.
func (c *Call) Then(ctx context.Context, l *eventloop.Loop, fn func(json.RawMessage, error)) {
	go func() {
		reply, err := c.Wait(ctx)
		l.Post(func() { fn(reply, err) })
	}()
}

// Ignore drops the outcome of a fire-and-forget notification. Delivery
// failures are logged at debug level and otherwise discarded.
func (c *Call) Ignore(ctx context.Context, log *logger.Logger, what string) {
	go func() {
		if _, err := c.Wait(ctx); err != nil {
			log.Debug().Err(err).Str("message", what).Msg("delivery failed")
		}
	}()
}
