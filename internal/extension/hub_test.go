package extension_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formpilot/internal/dom/htmldom"
	"github.com/v0xg/formpilot/internal/eventloop"
	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/frame"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/protocol"
)

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l := eventloop.New()
	t.Cleanup(l.Close)
	return l
}

func TestHub_NoBackground(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	_, err := hub.SendToBackground(context.Background(), extension.Sender{TabID: 1}, protocol.ScanFields{}).Wait(context.Background())
	assert.ErrorIs(t, err, extension.ErrNoReceiver)
}

func TestHub_BackgroundRoundTrip(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())

	var (
		gotMsg    protocol.RuntimeMessage
		gotSender extension.Sender
	)
	hub.ServeBackground(newLoop(t), func(_ context.Context, msg protocol.RuntimeMessage, sender extension.Sender) (any, error) {
		gotMsg, gotSender = msg, sender
		return protocol.TabStatus{IsJobPage: true, URL: "https://jobs.example.com"}, nil
	})

	raw, err := hub.SendToBackground(ctx, extension.Sender{TabID: 4, URL: "https://jobs.example.com"}, protocol.GetTabStatus{TabID: 4}).Wait(ctx)
	require.NoError(t, err)

	st, ok, err := protocol.DecodeReply[protocol.TabStatus](raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.IsJobPage)
	assert.Equal(t, protocol.GetTabStatus{TabID: 4}, gotMsg)
	assert.Equal(t, extension.TabID(4), gotSender.TabID)
}

func TestHub_NilReplyIsNull(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())
	hub.ServeBackground(newLoop(t), func(context.Context, protocol.RuntimeMessage, extension.Sender) (any, error) {
		return nil, nil
	})

	raw, err := hub.SendToBackground(ctx, extension.Sender{TabID: extension.NoTab}, protocol.ScanFields{}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Null, raw)
}

func TestHub_HandlerError(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())
	boom := errors.New("boom")
	hub.ServeTab(1, newLoop(t), func(context.Context, protocol.RuntimeMessage, extension.Sender) (any, error) {
		return nil, boom
	})

	_, err := hub.SendToTab(ctx, 1, protocol.GetDetection{}).Wait(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestHub_TabLifecycle(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())

	_, err := hub.SendToTab(ctx, 9, protocol.GetDetection{}).Wait(ctx)
	assert.ErrorIs(t, err, extension.ErrNoReceiver)

	hub.ServeTab(9, newLoop(t), func(context.Context, protocol.RuntimeMessage, extension.Sender) (any, error) {
		return protocol.DetectionResult{URL: "https://jobs.example.com"}, nil
	})
	_, err = hub.SendToTab(ctx, 9, protocol.GetDetection{}).Wait(ctx)
	require.NoError(t, err)

	hub.RemoveTab(9)
	_, err = hub.SendToTab(ctx, 9, protocol.GetDetection{}).Wait(ctx)
	assert.ErrorIs(t, err, extension.ErrTabClosed)
}

func TestHub_ClosedReceiverLoop(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())
	l := eventloop.New()
	hub.ServeTab(2, l, func(context.Context, protocol.RuntimeMessage, extension.Sender) (any, error) {
		return nil, nil
	})
	l.Close()

	_, err := hub.SendToTab(ctx, 2, protocol.GetDetection{}).Wait(ctx)
	assert.ErrorIs(t, err, extension.ErrNoReceiver)
}

func TestHub_UnknownTypeReachesHandler(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())

	got := make(chan protocol.RuntimeMessage, 1)
	hub.ServeBackground(newLoop(t), func(_ context.Context, msg protocol.RuntimeMessage, _ extension.Sender) (any, error) {
		got <- msg
		return nil, nil
	})

	_, err := hub.SendToBackground(ctx, extension.Sender{TabID: 1}, protocol.Unknown{Kind: "PING"}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Unknown{Kind: "PING"}, <-got)
}

func TestCall_ThenRunsOnLoop(t *testing.T) {
	ctx := context.Background()
	hub := extension.NewHub(logger.Nop())
	hub.ServeBackground(newLoop(t), func(context.Context, protocol.RuntimeMessage, extension.Sender) (any, error) {
		return protocol.FormDetectionUpdate{FillableFieldCount: 3}, nil
	})

	caller := newLoop(t)
	done := make(chan int, 1)
	require.NoError(t, caller.Do(ctx, func() {
		hub.SendToBackground(ctx, extension.Sender{TabID: 1}, protocol.ScanFields{}).Then(ctx, caller, func(raw json.RawMessage, err error) {
			require.NoError(t, err)
			v, _, _ := protocol.DecodeReply[protocol.FormDetectionUpdate](raw)
			done <- v.FillableFieldCount
		})
	}))

	select {
	case n := <-done:
		assert.Equal(t, 3, n)
	case <-time.After(time.Second):
		t.Fatal("Then callback never ran")
	}
}

func TestFrameScripting(t *testing.T) {
	top, err := frame.NewTop("https://jobs.example.com/", htmldom.MustParse(``))
	require.NoError(t, err)
	defer top.Close()
	child, err := top.AttachFrame("https://ats.example.com/form", htmldom.MustParse(``))
	require.NoError(t, err)

	tabs := extension.NewTabs()
	tabs.Set(5, top)

	ran := make(chan *frame.Window, 1)
	s := extension.FrameScripting{Tabs: tabs, Script: func(w *frame.Window) { ran <- w }}

	require.NoError(t, s.InjectAgent(context.Background(), 5, "https://ats.example.com/form"))
	select {
	case w := <-ran:
		assert.Same(t, child, w)
	case <-time.After(time.Second):
		t.Fatal("script did not run")
	}

	assert.Error(t, s.InjectAgent(context.Background(), 5, "https://other.example.com/"))
	assert.ErrorIs(t, s.InjectAgent(context.Background(), 6, "https://ats.example.com/form"), extension.ErrNoReceiver)
}
