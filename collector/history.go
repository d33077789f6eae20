package collector

import (
	"context"
	"sync"
	"time"

	"github.com/hubertat/irrigkit"
)

// IrrigationRun is one ON..OFF period of a channel, as seen in the
// irrigation/cN state reports.
type IrrigationRun struct {
	Channel int
	Start   time.Time
	End     time.Time
}

func (run IrrigationRun) Duration() time.Duration {
	return run.End.Sub(run.Start)
}

// RunTracker turns the periodic channel states into irrigation runs. The
// first ON opens a run, repeated ONs keep it open, the next OFF closes it.
type RunTracker struct {
	lock    sync.Mutex
	started map[int]time.Time
}

func NewRunTracker() *RunTracker {
	return &RunTracker{started: make(map[int]time.Time)}
}

// Observe returns the finished run when m closes one.
func (rt *RunTracker) Observe(m Measurement) (run IrrigationRun, finished bool) {
	if m.Kind != KindState {
		return
	}

	rt.lock.Lock()
	defer rt.lock.Unlock()

	start, running := rt.started[m.Channel]
	switch {
	case m.State == irrigkit.StateLabelOn && !running:
		rt.started[m.Channel] = m.Timestamp
	case m.State == irrigkit.StateLabelOff && running:
		delete(rt.started, m.Channel)
		return IrrigationRun{Channel: m.Channel, Start: start, End: m.Timestamp}, true
	}
	return
}

// RunStore is implemented by stores that keep the irrigation history.
type RunStore interface {
	SaveRun(ctx context.Context, run IrrigationRun) error
}
