package content_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formpilot/internal/agent"
	"github.com/v0xg/formpilot/internal/content"
	"github.com/v0xg/formpilot/internal/dom"
	"github.com/v0xg/formpilot/internal/dom/htmldom"
	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/eventloop"
	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/frame"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/protocol"
)

const (
	tab    extension.TabID = 1
	topURL                 = "https://jobs.example.com/careers"
)

const applicationForm = `
	<form>
		<input autocomplete="given-name" id="fn">
		<input autocomplete="family-name" id="ln">
		<input autocomplete="email" id="em">
	</form>`

var fast = content.Timing{
	Debounce:   10 * time.Millisecond,
	RetryDelay: 10 * time.Millisecond,
	MaxRetries: 5,
}

func ptr(s string) *string { return &s }

// background records every message the content script sends it.
func background(t *testing.T, hub *extension.Hub) <-chan protocol.RuntimeMessage {
	t.Helper()
	l := eventloop.New()
	t.Cleanup(l.Close)
	ch := make(chan protocol.RuntimeMessage, 64)
	hub.ServeBackground(l, func(_ context.Context, msg protocol.RuntimeMessage, sender extension.Sender) (any, error) {
		assert.Equal(t, tab, sender.TabID)
		select {
		case ch <- msg:
		default:
		}
		return nil, nil
	})
	return ch
}

func waitFor[T protocol.RuntimeMessage](t *testing.T, ch <-chan protocol.RuntimeMessage, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if v, ok := msg.(T); ok && match(v) {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("no matching %T received", zero)
			return zero
		}
	}
}

func start(t *testing.T, hub *extension.Hub, top *frame.Window, script frame.Script) *content.Script {
	t.Helper()
	s := content.Start(context.Background(), top, content.Options{
		Tab:         tab,
		Hub:         hub,
		Timing:      fast,
		AgentScript: script,
		Log:         logger.Nop(),
	})
	t.Cleanup(func() {
		s.Stop()
		top.Close()
	})
	return s
}

func newTop(t *testing.T, doc dom.Document) *frame.Window {
	t.Helper()
	top, err := frame.NewTop(topURL, doc)
	require.NoError(t, err)
	return top
}

func snapshot(t *testing.T, s *content.Script) content.Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestScript_RetriesEmptyPageUpToCap(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	s := start(t, hub, newTop(t, htmldom.MustParse(`<p>Loading…</p>`)), nil)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never finished")
	}
	assert.Equal(t, 6, snapshot(t, s).Passes)

	upd := waitFor(t, updates, func(protocol.FormDetectionUpdate) bool { return true })
	assert.Equal(t, protocol.FormDetectionUpdate{}, upd)

	time.Sleep(5 * fast.RetryDelay)
	snap := snapshot(t, s)
	assert.Equal(t, 6, snap.Passes)
	assert.Equal(t, 5, snap.Retries)
}

func TestScript_ReportsLocalForm(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	s := start(t, hub, newTop(t, htmldom.MustParse(applicationForm)), nil)

	upd := waitFor(t, updates, func(protocol.FormDetectionUpdate) bool { return true })
	assert.Equal(t, protocol.FormDetectionUpdate{HasApplicationForm: true, FillableFieldCount: 3}, upd)
	assert.Equal(t, 1, snapshot(t, s).Passes)
}

func TestScript_ScansWhenDocumentLoads(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	doc := htmldom.MustParse(applicationForm, htmldom.Loading())
	s := start(t, hub, newTop(t, doc), nil)

	assert.Zero(t, snapshot(t, s).Passes)
	doc.FinishLoad()

	upd := waitFor(t, updates, func(protocol.FormDetectionUpdate) bool { return true })
	assert.Equal(t, 3, upd.FillableFieldCount)
}

func TestScript_RescansOnInsertedInputs(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	doc := htmldom.MustParse(`<div id="root"><input name="search"></div>`)
	start(t, hub, newTop(t, doc), nil)
	waitFor(t, updates, func(protocol.FormDetectionUpdate) bool { return true })

	require.NoError(t, doc.Append("#root", applicationForm))

	upd := waitFor(t, updates, func(u protocol.FormDetectionUpdate) bool { return u.HasApplicationForm })
	assert.Equal(t, 3, upd.FillableFieldCount)
}

func TestScript_InjectsSameOriginFrame(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	top := newTop(t, htmldom.MustParse(`<iframe src="/apply"></iframe>`))
	child, err := top.AttachFrame("https://jobs.example.com/apply", htmldom.MustParse(applicationForm))
	require.NoError(t, err)

	s := start(t, hub, top, agent.Script(agent.Options{Debounce: 10 * time.Millisecond}))

	upd := waitFor(t, updates, func(u protocol.FormDetectionUpdate) bool { return u.FillableFieldCount == 3 })
	assert.True(t, upd.HasApplicationForm)
	assert.True(t, agent.Injected(child))

	snap := snapshot(t, s)
	assert.Equal(t, 1, snap.IframeCount)
	assert.Zero(t, snap.Retries)
	assert.Zero(t, snap.LocalSummary.FillableFieldCount)
}

func TestScript_AsksBackgroundForCrossOriginFrame(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	top := newTop(t, htmldom.MustParse(`<input name="search"><iframe></iframe>`))
	child, err := top.AttachFrame("https://boards.ats.example.net/embed/apply?job=7", htmldom.MustParse(applicationForm))
	require.NoError(t, err)

	start(t, hub, top, agent.Script(agent.Options{}))

	req := waitFor(t, updates, func(protocol.InjectIntoIframe) bool { return true })
	assert.Equal(t, child.URL(), req.FrameURL)

	assert.False(t, agent.Injected(child))
}

func TestScript_IframeReports(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	top := newTop(t, htmldom.MustParse(`<input name="search"><iframe></iframe>`))
	child, err := top.AttachFrame("https://ats.example.com/apply", htmldom.MustParse(``))
	require.NoError(t, err)
	stranger, err := frame.NewTop("https://ads.example.org/", htmldom.MustParse(``))
	require.NoError(t, err)
	defer stranger.Close()

	s := start(t, hub, top, nil)
	waitFor(t, updates, func(protocol.FormDetectionUpdate) bool { return true })

	report, err := protocol.EncodeFrame(protocol.IframeScanResult{HasApplicationForm: true, FillableFieldCount: 2})
	require.NoError(t, err)

	top.PostMessage(report, "*", child)
	upd := waitFor(t, updates, func(u protocol.FormDetectionUpdate) bool { return u.HasApplicationForm })
	assert.Equal(t, 2, upd.FillableFieldCount)

	// A second report from the same frame replaces the first.
	top.PostMessage(report, "*", child)
	upd = waitFor(t, updates, func(u protocol.FormDetectionUpdate) bool { return true })
	assert.Equal(t, 2, upd.FillableFieldCount)

	top.PostMessage(report, "*", stranger)
	top.PostMessage(report, "*", nil)
	top.PostMessage([]byte(`{"type":"formpilot:scan-result","fillable_field_count":"x"}`), "*", child)

	snap := snapshot(t, s)
	assert.Equal(t, 1, snap.IframeCount)
	assert.Equal(t, protocol.FormDetectionUpdate{HasApplicationForm: true, FillableFieldCount: 2}, snap.Last)
}

func TestScript_GetDetection(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	background(t, hub)
	start(t, hub, newTop(t, htmldom.MustParse(applicationForm)), nil)

	raw, err := hub.SendToTab(context.Background(), tab, protocol.GetDetection{}).Wait(context.Background())
	require.NoError(t, err)

	d, ok, err := protocol.DecodeReply[protocol.DetectionResult](raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, d.IsJobPage)
	assert.Equal(t, topURL, d.URL)
	assert.NotNil(t, d.Signals)
	assert.Empty(t, d.Signals)
}

func TestScript_ScanFields(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	background(t, hub)
	start(t, hub, newTop(t, htmldom.MustParse(applicationForm)), nil)

	raw, err := hub.SendToTab(context.Background(), tab, protocol.ScanFields{}).Wait(context.Background())
	require.NoError(t, err)

	reply, ok, err := protocol.DecodeReply[protocol.ScanFieldsReply](raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, reply.Local.FillableFieldCount)
	assert.Len(t, reply.Local.Fields, 3)
	assert.Equal(t, protocol.FormDetectionUpdate{HasApplicationForm: true, FillableFieldCount: 3}, reply.Aggregate)
	assert.Zero(t, reply.Frames)
}

func TestScript_UnknownMessageRepliesNull(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	background(t, hub)
	start(t, hub, newTop(t, htmldom.MustParse(``)), nil)

	raw, err := hub.SendToTab(context.Background(), tab, protocol.Unknown{Kind: "OPEN_POPUP"}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.Null, raw)
}

func TestScript_AutofillFillsTopAndFrames(t *testing.T) {
	hub := extension.NewHub(logger.Nop())
	updates := background(t, hub)
	topDoc := htmldom.MustParse(applicationForm + `<iframe></iframe>`)
	frameDoc := htmldom.MustParse(applicationForm)
	top := newTop(t, topDoc)
	_, err := top.AttachFrame("https://jobs.example.com/apply", frameDoc)
	require.NoError(t, err)

	s := start(t, hub, top, agent.Script(agent.Options{}))
	waitFor(t, updates, func(u protocol.FormDetectionUpdate) bool { return u.FillableFieldCount == 6 })

	p := engine.Profile{FirstName: ptr("Ada"), LastName: ptr("Lovelace")}
	raw, err := hub.SendToTab(context.Background(), tab, protocol.AutofillForm{Profile: p}).Wait(context.Background())
	require.NoError(t, err)

	reply, ok, err := protocol.DecodeReply[protocol.AutofillReply](raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, reply.Filled)
	assert.Equal(t, 1, reply.Skipped)
	assert.Equal(t, 1, reply.BroadcastFrames)
	assert.Equal(t, "Ada", topDoc.Find("#fn").Value())

	require.Eventually(t, func() bool {
		return snapshot(t, s).IframeFills == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Lovelace", frameDoc.Find("#ln").Value())
	assert.Equal(t, "", frameDoc.Find("#em").Value())
}
