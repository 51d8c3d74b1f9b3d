package extension

import (
	"context"
	"fmt"
	"sync"

	"github.com/v0xg/formpilot/internal/frame"
	"github.com/v0xg/formpilot/internal/logger"
)

// Badge colours and text.
const (
	BadgeText  = "JOB"
	BadgeColor = "#16a34a"
)

// Badge is the toolbar badge of the extension action.
type Badge interface {
	Set(tab TabID, isJobPage bool)
}

// LogBadge renders badge changes as log lines.
type LogBadge struct {
	Log *logger.Logger
}

func (b LogBadge) Set(tab TabID, isJobPage bool) {
	if isJobPage {
		b.Log.Info().Int("tab_id", int(tab)).Str("text", BadgeText).Str("color", BadgeColor).Msg("badge set")
		return
	}
	b.Log.Debug().Int("tab_id", int(tab)).Msg("badge cleared")
}

// Scripting injects the frame agent with extension privileges.
type Scripting interface {
	InjectAgent(ctx context.Context, tab TabID, frameURL string) error
}

// Tabs tracks each tab's top window.
type Tabs struct {
	mu   sync.RWMutex
	tops map[TabID]*frame.Window
}

// NewTabs returns an empty registry.
func NewTabs() *Tabs {
	return &Tabs{tops: make(map[TabID]*frame.Window)}
}

// Set records the top window for tab.
func (t *Tabs) Set(tab TabID, top *frame.Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tops[tab] = top
}

// Remove forgets tab.
func (t *Tabs) Remove(tab TabID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tops, tab)
}

// Top returns the top window for tab.
func (t *Tabs) Top(tab TabID) (*frame.Window, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.tops[tab]
	return w, ok
}

// FrameScripting implements Scripting by running Script in every frame of
// the tab whose URL matches.
type FrameScripting struct {
	Tabs   *Tabs
	Script frame.Script
}

func (s FrameScripting) InjectAgent(_ context.Context, tab TabID, frameURL string) error {
	top, ok := s.Tabs.Top(tab)
	if !ok {
		return fmt.Errorf("inject agent: tab %d: %w", tab, ErrNoReceiver)
	}
	var (
		matched  int
		firstErr error
	)
	top.Walk(func(w *frame.Window) {
		if w.IsTop() || w.URL() != frameURL {
			return
		}
		matched++
		if err := w.RunPrivileged(s.Script); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	if matched == 0 {
		return fmt.Errorf("inject agent: tab %d has no frame %s", tab, frameURL)
	}
	return firstErr
}
