// Package background owns per-tab detection state for the whole browser
// session and routes runtime messages between tabs, the popup and the
// extension's privileged capabilities.
package background

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/eventloop"
	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/profile"
	"github.com/v0xg/formpilot/internal/protocol"
)

// DefaultSettleDelay is the pause between a qualifying form detection and
// the autofill-on-load trigger.
const DefaultSettleDelay = 100 * time.Millisecond

// MinAutofillFields is the fillable count required for autofill-on-load.
const MinAutofillFields = 2

// TabStatus is a tab's job-page state.
type TabStatus = protocol.TabStatus

// FormDetectionState is a tab's aggregated form detection.
type FormDetectionState = protocol.FormDetectionUpdate

// Settings are the user's extension-wide preferences.
type Settings struct {
	AutofillOnLoad bool
}

// Options configures a Store.
type Options struct {
	Hub         *extension.Hub
	Badge       extension.Badge
	Scripting   extension.Scripting
	Profiles    profile.Source
	Settings    Settings
	SettleDelay time.Duration
	Log         *logger.Logger
}

// Store is the background context. All maps are owned by its loop.
type Store struct {
	ctx       context.Context
	loop      *eventloop.Loop
	hub       *extension.Hub
	badge     extension.Badge
	scripting extension.Scripting
	profiles  profile.Source
	settings  Settings
	settle    time.Duration
	log       *logger.Logger

	status     map[extension.TabID]TabStatus
	forms      map[extension.TabID]FormDetectionState
	injections map[extension.TabID][]string
	// autofilled marks tabs whose autofill-on-load already fired for the
	// current navigation.
	autofilled map[extension.TabID]bool
}

// New starts the background context and registers it with the hub.
func New(ctx context.Context, opts Options) *Store {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	s := &Store{
		ctx:        ctx,
		loop:       eventloop.New(),
		hub:        opts.Hub,
		badge:      opts.Badge,
		scripting:  opts.Scripting,
		profiles:   opts.Profiles,
		settings:   opts.Settings,
		settle:     opts.SettleDelay,
		log:        opts.Log.WithComponent("background"),
		status:     make(map[extension.TabID]TabStatus),
		forms:      make(map[extension.TabID]FormDetectionState),
		injections: make(map[extension.TabID][]string),
		autofilled: make(map[extension.TabID]bool),
	}
	s.hub.ServeBackground(s.loop, s.Handle)
	return s
}

// Close stops the background loop.
func (s *Store) Close() { s.loop.Close() }

// Handle routes one inbound runtime message. It runs on the store loop.
func (s *Store) Handle(ctx context.Context, msg protocol.RuntimeMessage, sender extension.Sender) (any, error) {
	switch m := msg.(type) {
	case protocol.DetectionResult:
		if sender.TabID == extension.NoTab {
			return nil, nil
		}
		s.setStatus(sender.TabID, m)
		return nil, nil

	case protocol.FormDetectionUpdate:
		if sender.TabID == extension.NoTab {
			return nil, nil
		}
		tab := sender.TabID
		s.forms[tab] = m
		if s.settings.AutofillOnLoad && !s.autofilled[tab] && m.HasApplicationForm && m.FillableFieldCount >= MinAutofillFields {
			s.autofilled[tab] = true
			s.loop.AfterFunc(s.settle, func() { s.autofillOnLoad(tab) })
		}
		return nil, nil

	case protocol.GetTabStatus:
		st, ok := s.status[extension.TabID(m.TabID)]
		if !ok {
			return nil, nil
		}
		return st, nil

	case protocol.InjectIntoIframe:
		if sender.TabID == extension.NoTab || m.FrameURL == "" {
			return nil, nil
		}
		tab := sender.TabID
		if slices.Contains(s.injections[tab], m.FrameURL) {
			return nil, nil
		}
		s.injections[tab] = append(s.injections[tab], m.FrameURL)
		if s.scripting != nil {
			go s.inject(tab, m.FrameURL)
		}
		return nil, nil

	default:
		return nil, nil
	}
}

// inject runs the privileged injection. A failed frame is forgotten so a
// later scan pass can ask again.
func (s *Store) inject(tab extension.TabID, frameURL string) {
	err := s.scripting.InjectAgent(s.ctx, tab, frameURL)
	if err == nil {
		return
	}
	s.log.Debug().Err(err).Int("tab_id", int(tab)).Str("frame_url", frameURL).Msg("privileged injection failed")
	s.loop.Post(func() {
		if urls, ok := s.injections[tab]; ok {
			s.injections[tab] = slices.DeleteFunc(urls, func(u string) bool { return u == frameURL })
		}
	})
}

func (s *Store) setStatus(tab extension.TabID, d protocol.DetectionResult) {
	signals := d.Signals
	if signals == nil {
		signals = []string{}
	}
	s.status[tab] = TabStatus{
		IsJobPage: d.IsJobPage,
		Score:     d.Score,
		Signals:   signals,
		URL:       d.URL,
	}
	s.setBadge(tab, d.IsJobPage)
}

func (s *Store) setBadge(tab extension.TabID, isJobPage bool) {
	if s.badge != nil {
		s.badge.Set(tab, isJobPage)
	}
}

// TabRemoved drops all state for a closed tab.
func (s *Store) TabRemoved(ctx context.Context, tab extension.TabID) error {
	return s.loop.Do(ctx, func() {
		delete(s.status, tab)
		delete(s.forms, tab)
		delete(s.injections, tab)
		delete(s.autofilled, tab)
		s.hub.RemoveTab(tab)
	})
}

// NavigationStarted forgets the previous document's form state, injected
// frames and autofill-on-load for tab. Call it before the new document's
// content script starts.
func (s *Store) NavigationStarted(tab extension.TabID) {
	s.loop.Post(func() {
		delete(s.forms, tab)
		delete(s.injections, tab)
		delete(s.autofilled, tab)
	})
}

// NavigationCompleted asks the tab for its detection result and updates
// its status. An unreachable tab has its status and badge cleared.
func (s *Store) NavigationCompleted(tab extension.TabID) {
	s.loop.Post(func() {
		s.hub.SendToTab(s.ctx, tab, protocol.GetDetection{}).Then(s.ctx, s.loop, func(raw json.RawMessage, err error) {
			if err == nil {
				var (
					d  protocol.DetectionResult
					ok bool
				)
				d, ok, err = protocol.DecodeReply[protocol.DetectionResult](raw)
				if err == nil && ok {
					s.setStatus(tab, d)
					return
				}
			}
			s.log.Debug().Err(err).Int("tab_id", int(tab)).Msg("content script unreachable, clearing status")
			delete(s.status, tab)
			s.setBadge(tab, false)
		})
	})
}

// Status returns the stored status for tab.
func (s *Store) Status(ctx context.Context, tab extension.TabID) (TabStatus, bool, error) {
	var (
		st TabStatus
		ok bool
	)
	err := s.loop.Do(ctx, func() { st, ok = s.status[tab] })
	return st, ok, err
}

// FormState returns the stored form detection state for tab.
func (s *Store) FormState(ctx context.Context, tab extension.TabID) (FormDetectionState, bool, error) {
	var (
		st FormDetectionState
		ok bool
	)
	err := s.loop.Do(ctx, func() { st, ok = s.forms[tab] })
	return st, ok, err
}

// Injections returns the frame URLs a tab asked to have injected.
func (s *Store) Injections(ctx context.Context, tab extension.TabID) ([]string, error) {
	var out []string
	err := s.loop.Do(ctx, func() { out = append(out, s.injections[tab]...) })
	return out, err
}

// ToEngineProfile maps the API profile onto the engine's shape.
func ToEngineProfile(p *profile.Profile) engine.Profile {
	if p == nil {
		return engine.Profile{}
	}
	return engine.Profile{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		Phone:       p.Phone,
		City:        p.City,
		Country:     p.Country,
		LinkedInURL: p.LinkedInURL,
	}
}
