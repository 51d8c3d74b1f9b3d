// Package agent is the scan-and-fill worker injected into child frames.
// It shares no state with the embedding page: it reports scans to its
// parent window and takes fill commands from it, both over postMessage.
//
// The agent runs the same scanner, executor and engine packages as the top
// frame, so the two copies of the logic cannot diverge.
package agent

import (
	"time"

	"github.com/v0xg/formpilot/internal/dom"
	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/eventloop"
	"github.com/v0xg/formpilot/internal/frame"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/protocol"
)

// Marker is the global flag that guards against double injection.
const Marker = "__formpilotAgent"

// DefaultDebounce is the quiet period after DOM mutations before a rescan.
const DefaultDebounce = 250 * time.Millisecond

// Options configures an agent.
type Options struct {
	Debounce time.Duration
	Log      *logger.Logger
}

// Agent is one injected frame worker.
type Agent struct {
	win      *frame.Window
	engine   *engine.Engine
	debounce *eventloop.Debouncer
	log      *logger.Logger
}

// Script returns an injectable script that starts an agent in the target
// window.
func Script(opts Options) frame.Script {
	return func(w *frame.Window) {
		Inject(w, opts)
	}
}

// Injected reports whether an agent already runs in w. Callers outside w
// may only ask about same-origin windows.
func Injected(w *frame.Window) bool {
	_, ok := w.Global(Marker)
	return ok
}

// Inject starts an agent in w. It must run on w's loop. A second call for
// the same window returns false and does nothing.
func Inject(w *frame.Window, opts Options) (*Agent, bool) {
	if !w.MarkOnce(Marker) {
		return nil, false
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	a := &Agent{
		win:    w,
		engine: engine.New(w.Document()),
		log:    opts.Log.WithComponent("agent").WithFrame(w.URL()),
	}
	a.debounce = eventloop.NewDebouncer(w.Loop(), opts.Debounce, a.scanAndReport)

	w.AddMessageListener(a.onMessage)

	doc := w.Document()
	if obs, ok := doc.(dom.Observable); ok {
		obs.Observe(func(m dom.Mutation) {
			if m.Adds("input", "textarea") {
				w.Loop().Post(a.debounce.Trigger)
			}
		})
		if !doc.Loaded() {
			obs.OnLoad(func() { w.Loop().Post(a.scanAndReport) })
		}
	}
	if doc.Loaded() {
		a.scanAndReport()
	}
	a.log.Debug().Msg("agent injected")
	return a, true
}

func (a *Agent) scanAndReport() {
	res := a.engine.Scan()
	if len(res.FillableFields) == 0 && !res.HasApplicationForm {
		return
	}
	if a.win.IsTop() {
		return
	}
	a.log.Debug().Interface("types", res.Types()).Int("relevant", res.TotalRelevantFields).Msg("frame scanned")
	summary := protocol.Summarize(res)
	a.post(protocol.IframeScanResult{
		HasApplicationForm: summary.HasApplicationForm,
		FillableFieldCount: summary.FillableFieldCount,
		Fields:             summary.Fields,
	})
}

func (a *Agent) onMessage(ev frame.MessageEvent) {
	if a.win.IsTop() || ev.Source != a.win.Parent() {
		return
	}
	msg, err := protocol.DecodeFrame(ev.Data)
	if err != nil {
		return
	}
	cmd, ok := msg.(protocol.FillCommand)
	if !ok {
		return
	}
	report := a.engine.Fill(cmd.Profile)
	a.log.Debug().Int("filled", report.Filled).Int("skipped", report.Skipped).Msg("fill command handled")
	a.post(protocol.FillResultReport{
		RequestID: cmd.RequestID,
		Filled:    report.Filled,
		Skipped:   report.Skipped,
		Results:   report.Results,
	})
}

// post sends msg to the parent. The payload carries no profile data, so
// any target origin is acceptable.
func (a *Agent) post(msg protocol.FrameMessage) {
	data, err := protocol.EncodeFrame(msg)
	if err != nil {
		a.log.Warn().Err(err).Msg("encode frame message")
		return
	}
	a.win.Parent().PostMessage(data, "*", a.win)
}
