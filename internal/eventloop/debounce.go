package eventloop

import "time"

// Debouncer runs fn on the loop once no Trigger has happened for the
// window. Trigger must be called from the loop.
type Debouncer struct {
	loop   *Loop
	window time.Duration
	fn     func()
	timer  *time.Timer
	gen    uint64
}

// NewDebouncer returns a debouncer bound to l.
func NewDebouncer(l *Loop, window time.Duration, fn func()) *Debouncer {
	return &Debouncer{loop: l, window: window, fn: fn}
}

// Trigger restarts the window.
func (d *Debouncer) Trigger() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.loop.AfterFunc(d.window, func() {
		// A timer that fired before Stop may still have posted.
		if gen != d.gen {
			return
		}
		d.timer = nil
		d.fn()
	})
}

// Stop cancels a pending run.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
