// Package session assembles one extension instance: the runtime hub, the
// background store and a content script per attached tab.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/v0xg/formpilot/internal/agent"
	"github.com/v0xg/formpilot/internal/background"
	"github.com/v0xg/formpilot/internal/content"
	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/frame"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/profile"
	"github.com/v0xg/formpilot/internal/protocol"
)

// Options configures a Session.
type Options struct {
	Timing      content.Timing
	SettleDelay time.Duration
	Settings    background.Settings
	Profiles    profile.Source
	Detector    content.Detector
	Badge       extension.Badge
	Log         *logger.Logger
}

// Session is a running extension instance.
type Session struct {
	ctx   context.Context
	hub   *extension.Hub
	tabs  *extension.Tabs
	store *background.Store
	opts  Options
	log   *logger.Logger

	mu      sync.Mutex
	next    extension.TabID
	scripts map[extension.TabID]*content.Script
}

// New starts the background context.
func New(ctx context.Context, opts Options) *Session {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Badge == nil {
		opts.Badge = extension.LogBadge{Log: opts.Log.WithComponent("badge")}
	}

	s := &Session{
		ctx:     ctx,
		hub:     extension.NewHub(opts.Log),
		tabs:    extension.NewTabs(),
		opts:    opts,
		log:     opts.Log.WithComponent("session"),
		next:    1,
		scripts: make(map[extension.TabID]*content.Script),
	}
	s.store = background.New(ctx, background.Options{
		Hub:         s.hub,
		Badge:       opts.Badge,
		Scripting:   extension.FrameScripting{Tabs: s.tabs, Script: s.agentScript()},
		Profiles:    opts.Profiles,
		Settings:    opts.Settings,
		SettleDelay: opts.SettleDelay,
		Log:         opts.Log,
	})
	return s
}

func (s *Session) agentScript() frame.Script {
	return agent.Script(agent.Options{Debounce: s.opts.Timing.Debounce, Log: s.opts.Log})
}

// Hub returns the runtime hub.
func (s *Session) Hub() *extension.Hub { return s.hub }

// Store returns the background store.
func (s *Session) Store() *background.Store { return s.store }

// Attach opens a tab for top, starts its content script and announces the
// completed navigation to the background.
func (s *Session) Attach(top *frame.Window) extension.TabID {
	s.mu.Lock()
	tab := s.next
	s.next++
	s.mu.Unlock()

	s.tabs.Set(tab, top)
	s.store.NavigationStarted(tab)
	script := content.Start(s.ctx, top, content.Options{
		Tab:         tab,
		Hub:         s.hub,
		Timing:      s.opts.Timing,
		Detector:    s.opts.Detector,
		AgentScript: s.agentScript(),
		Log:         s.opts.Log,
	})

	s.mu.Lock()
	s.scripts[tab] = script
	s.mu.Unlock()

	s.store.NavigationCompleted(tab)
	s.log.Debug().Int("tab_id", int(tab)).Str("url", top.URL()).Msg("tab attached")
	return tab
}

// Script returns the content script running in tab.
func (s *Session) Script(tab extension.TabID) (*content.Script, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scripts[tab]
	return sc, ok
}

// WaitReady blocks until tab's content script has finished its first
// scanning pass, including any empty-page retries.
func (s *Session) WaitReady(ctx context.Context, tab extension.TabID) error {
	script, ok := s.Script(tab)
	if !ok {
		return fmt.Errorf("wait for tab %d: %w", tab, extension.ErrNoReceiver)
	}
	select {
	case <-script.Ready():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for tab %d: %w", tab, ctx.Err())
	}
}

// CloseTab tears the tab down and clears its background state.
func (s *Session) CloseTab(ctx context.Context, tab extension.TabID) error {
	s.mu.Lock()
	script, ok := s.scripts[tab]
	delete(s.scripts, tab)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("close tab %d: %w", tab, extension.ErrNoReceiver)
	}

	script.Stop()
	s.tabs.Remove(tab)
	if err := s.store.TabRemoved(ctx, tab); err != nil {
		return fmt.Errorf("close tab %d: %w", tab, err)
	}
	script.Window().Close()
	return nil
}

// TabStatus asks the background for a tab's status, the way the popup does.
func (s *Session) TabStatus(ctx context.Context, tab extension.TabID) (protocol.TabStatus, bool, error) {
	popup := extension.Sender{TabID: extension.NoTab}
	raw, err := s.hub.SendToBackground(ctx, popup, protocol.GetTabStatus{TabID: int(tab)}).Wait(ctx)
	if err != nil {
		return protocol.TabStatus{}, false, err
	}
	return protocol.DecodeReply[protocol.TabStatus](raw)
}

// ScanFields asks the tab for a fresh scan.
func (s *Session) ScanFields(ctx context.Context, tab extension.TabID) (protocol.ScanFieldsReply, error) {
	raw, err := s.hub.SendToTab(ctx, tab, protocol.ScanFields{}).Wait(ctx)
	if err != nil {
		return protocol.ScanFieldsReply{}, err
	}
	reply, ok, err := protocol.DecodeReply[protocol.ScanFieldsReply](raw)
	if err != nil {
		return reply, err
	}
	if !ok {
		return reply, fmt.Errorf("scan tab %d: %w", tab, extension.ErrNoReceiver)
	}
	return reply, nil
}

// Autofill fills the tab from the profile source.
func (s *Session) Autofill(ctx context.Context, tab extension.TabID) (*protocol.AutofillReply, error) {
	return s.store.TriggerAutofill(ctx, tab)
}

// Close stops every tab and the background.
func (s *Session) Close() {
	s.mu.Lock()
	tabs := make([]extension.TabID, 0, len(s.scripts))
	for tab := range s.scripts {
		tabs = append(tabs, tab)
	}
	s.mu.Unlock()

	for _, tab := range tabs {
		if err := s.CloseTab(s.ctx, tab); err != nil {
			s.log.Debug().Err(err).Int("tab_id", int(tab)).Msg("close tab")
		}
	}
	s.store.Close()
}
