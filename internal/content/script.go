package content

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/v0xg/formpilot/internal/agent"
	"github.com/v0xg/formpilot/internal/dom"
	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/eventloop"
	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/frame"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/protocol"
	"github.com/v0xg/formpilot/internal/scanner"
)

// Timing holds the scan scheduling parameters.
type Timing struct {
	Debounce   time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// DefaultTiming returns the production schedule.
func DefaultTiming() Timing {
	return Timing{
		Debounce:   250 * time.Millisecond,
		RetryDelay: time.Second,
		MaxRetries: 5,
	}
}

// Detector classifies a page as a job posting. Scoring lives outside this
// package.
type Detector interface {
	Detect(doc dom.Document, url string) protocol.DetectionResult
}

// NopDetector reports every page as not a job posting.
type NopDetector struct{}

func (NopDetector) Detect(_ dom.Document, url string) protocol.DetectionResult {
	return protocol.DetectionResult{URL: url, Signals: []string{}}
}

// Options configures a Script.
type Options struct {
	Tab         extension.TabID
	Hub         *extension.Hub
	Timing      Timing
	Detector    Detector
	AgentScript frame.Script
	Log         *logger.Logger
}

// Script is the content script of one tab's top window.
type Script struct {
	ctx      context.Context
	win      *frame.Window
	engine   *engine.Engine
	hub      *extension.Hub
	tab      extension.TabID
	timing   Timing
	detector Detector
	agent    frame.Script
	log      *logger.Logger

	// Owned by the window loop.
	iframeResults map[string]protocol.IframeScanResult
	retries       int
	retryTimer    *time.Timer
	debounce      *eventloop.Debouncer
	last          protocol.FormDetectionUpdate
	passes        int
	iframeFills   int
	disconnect    func()

	ready     chan struct{}
	readyOnce sync.Once
}

// Start attaches a content script to the top window w and registers it
// with the hub. It may be called from any goroutine.
func Start(ctx context.Context, w *frame.Window, opts Options) *Script {
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Detector == nil {
		opts.Detector = NopDetector{}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	s := &Script{
		ctx:           ctx,
		win:           w,
		engine:        engine.New(w.Document()),
		hub:           opts.Hub,
		tab:           opts.Tab,
		timing:        opts.Timing,
		detector:      opts.Detector,
		agent:         opts.AgentScript,
		log:           opts.Log.WithComponent("content").WithTab(int(opts.Tab)),
		iframeResults: make(map[string]protocol.IframeScanResult),
		disconnect:    func() {},
		ready:         make(chan struct{}),
	}
	s.debounce = eventloop.NewDebouncer(w.Loop(), s.timing.Debounce, s.scan)

	w.AddMessageListener(s.onFrameMessage)
	s.hub.ServeTab(s.tab, w.Loop(), s.handleRuntime)

	doc := w.Document()
	if obs, ok := doc.(dom.Observable); ok {
		s.disconnect = obs.Observe(func(m dom.Mutation) {
			if m.Adds("input", "textarea", "iframe") {
				w.Loop().Post(s.debounce.Trigger)
			}
		})
		if !doc.Loaded() {
			obs.OnLoad(func() { w.Loop().Post(s.scan) })
		}
	}
	if doc.Loaded() {
		w.Loop().Post(s.scan)
	}
	return s
}

// Stop detaches the script from the page.
func (s *Script) Stop() {
	s.disconnect()
	s.win.Loop().Post(func() {
		s.debounce.Stop()
		if s.retryTimer != nil {
			s.retryTimer.Stop()
		}
	})
}

// Window returns the top window.
func (s *Script) Window() *frame.Window { return s.win }

func (s *Script) sender() extension.Sender {
	return extension.Sender{TabID: s.tab, URL: s.win.URL()}
}

// scan is one Scanning pass: local scan, empty-page retry, aggregation and
// agent injection.
func (s *Script) scan() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.passes++
	s.engine.Scan()

	if s.countInputs() == 0 && s.retries < s.timing.MaxRetries {
		s.retries++
		s.log.Debug().Int("attempt", s.retries).Msg("no inputs yet, retrying")
		s.retryTimer = s.win.Loop().AfterFunc(s.timing.RetryDelay, s.scan)
		return
	}

	s.aggregate()
	s.injectFrames()
	s.readyOnce.Do(func() { close(s.ready) })
}

// Ready is closed once the first scanning pass has aggregated and started
// frame injection. On a page without readable inputs that is after the last
// empty-page retry.
func (s *Script) Ready() <-chan struct{} { return s.ready }

// countInputs counts inputs in the top document and every child document
// readable from here.
func (s *Script) countInputs() int {
	n := scanner.CountInputs(s.win.Document())
	for _, child := range s.win.Frames() {
		if doc, err := child.ContentDocument(s.win); err == nil {
			n += scanner.CountInputs(doc)
		}
	}
	return n
}

func (s *Script) aggregate() protocol.FormDetectionUpdate {
	s.last = Aggregate(s.engine.Last(), s.iframeResults)
	s.hub.SendToBackground(s.ctx, s.sender(), s.last).Ignore(s.ctx, s.log, string(protocol.TypeFormDetectionUpdate))
	return s.last
}

func (s *Script) injectFrames() {
	if s.agent == nil {
		return
	}
	for _, child := range s.win.Frames() {
		if child.SameOrigin(s.win) && agent.Injected(child) {
			continue
		}
		err := child.InjectScript(s.win, s.agent)
		if err == nil {
			continue
		}
		s.log.Debug().Err(err).Str("frame_url", child.URL()).Msg("direct injection failed, asking background")
		s.hub.SendToBackground(s.ctx, s.sender(), protocol.InjectIntoIframe{FrameURL: child.URL()}).
			Ignore(s.ctx, s.log, string(protocol.TypeInjectIntoIframe))
	}
}

// liveChild returns the child window that sent ev, or nil for anything
// else.
func (s *Script) liveChild(ev frame.MessageEvent) *frame.Window {
	if ev.Source == nil {
		return nil
	}
	for _, child := range s.win.Frames() {
		if child == ev.Source {
			return child
		}
	}
	return nil
}

func (s *Script) onFrameMessage(ev frame.MessageEvent) {
	child := s.liveChild(ev)
	if child == nil {
		return
	}
	msg, err := protocol.DecodeFrame(ev.Data)
	if err != nil {
		return
	}
	switch m := msg.(type) {
	case protocol.IframeScanResult:
		s.iframeResults[child.Key()] = m
		s.log.Debug().Str("frame", child.Key()).Int("fillable", m.FillableFieldCount).Msg("iframe scan result")
		s.aggregate()
	case protocol.FillResultReport:
		s.iframeFills += m.Filled
		s.log.Info().Str("frame", child.Key()).Str("request_id", m.RequestID).
			Int("filled", m.Filled).Int("skipped", m.Skipped).Msg("iframe fill result")
	case protocol.FillCommand:
		// Agents never command the top frame.
	}
}

func (s *Script) handleRuntime(_ context.Context, msg protocol.RuntimeMessage, _ extension.Sender) (any, error) {
	switch m := msg.(type) {
	case protocol.GetDetection:
		return s.detector.Detect(s.win.Document(), s.win.URL()), nil
	case protocol.ScanFields:
		local := s.engine.Scan()
		agg := s.aggregate()
		return protocol.ScanFieldsReply{
			Local:     protocol.Summarize(local),
			Aggregate: agg,
			Frames:    len(s.iframeResults),
		}, nil
	case protocol.AutofillForm:
		report := s.engine.Fill(m.Profile)
		sent := s.broadcastFill(m.Profile)
		s.log.Info().Int("filled", report.Filled).Int("skipped", report.Skipped).Int("frames", sent).Msg("autofill")
		return protocol.AutofillReply{Report: report, BroadcastFrames: sent}, nil
	default:
		return nil, nil
	}
}

// broadcastFill forwards a fill command to every child frame so agents can
// fill fields the top frame cannot see.
func (s *Script) broadcastFill(p engine.Profile) int {
	data, err := protocol.EncodeFrame(protocol.FillCommand{
		RequestID: uuid.NewString(),
		Profile:   p,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("encode fill command")
		return 0
	}
	children := s.win.Frames()
	for _, child := range children {
		child.PostMessage(data, child.Origin(), s.win)
	}
	return len(children)
}

// Snapshot is a read-only view of the script state for diagnostics.
type Snapshot struct {
	Last         protocol.FormDetectionUpdate
	IframeCount  int
	Retries      int
	Passes       int
	IframeFills  int
	LocalSummary protocol.ScanSummary
}

// Snapshot reads the script state on its loop.
func (s *Script) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.win.Loop().Do(ctx, func() {
		snap = Snapshot{
			Last:         s.last,
			IframeCount:  len(s.iframeResults),
			Retries:      s.retries,
			Passes:       s.passes,
			IframeFills:  s.iframeFills,
			LocalSummary: protocol.Summarize(s.engine.Last()),
		}
	})
	return snap, err
}
