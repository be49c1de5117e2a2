// Package devicetest provides in-memory lights and discoverers for tests.
package devicetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dokzlo13/lightseq/internal/device"
)

// ErrInjected is returned by lights configured to fail.
var ErrInjected = errors.New("injected failure")

// Call records one control call received by a Light.
type Call struct {
	ID    device.ID
	Op    string // "on", "off" or "state"
	Pilot device.Pilot
	Start time.Time
	End   time.Time
}

// Recorder collects calls from many lights in arrival order.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Len returns the number of recorded calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Light is a scriptable device.Light.
type Light struct {
	id       device.ID
	recorder *Recorder

	mu       sync.Mutex
	delay    time.Duration
	fail     bool
	state    device.State
	inflight int
}

var _ device.Light = (*Light)(nil)

// NewLight creates a fake light that reports calls to rec (which may be nil).
func NewLight(id device.ID, rec *Recorder) *Light {
	return &Light{id: id, recorder: rec}
}

// SetDelay makes every call take d, or until ctx is done.
func (l *Light) SetDelay(d time.Duration) {
	l.mu.Lock()
	l.delay = d
	l.mu.Unlock()
}

// SetFail makes every call return ErrInjected.
func (l *Light) SetFail(fail bool) {
	l.mu.Lock()
	l.fail = fail
	l.mu.Unlock()
}

// SetState sets what UpdateState reports.
func (l *Light) SetState(s device.State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// InFlight returns the number of calls currently executing.
func (l *Light) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight
}

func (l *Light) ID() device.ID { return l.id }

func (l *Light) TurnOn(ctx context.Context, p device.Pilot) error {
	return l.do(ctx, "on", p)
}

func (l *Light) TurnOff(ctx context.Context) error {
	return l.do(ctx, "off", device.Pilot{})
}

func (l *Light) UpdateState(ctx context.Context) (device.State, error) {
	if err := l.do(ctx, "state", device.Pilot{}); err != nil {
		return device.State{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, nil
}

func (l *Light) do(ctx context.Context, op string, p device.Pilot) error {
	l.mu.Lock()
	delay, fail := l.delay, l.fail
	l.inflight++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.inflight--
		l.mu.Unlock()
	}()

	call := Call{ID: l.id, Op: op, Pilot: p, Start: time.Now()}
	var err error
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-t.C:
		}
		t.Stop()
	}
	if err == nil && fail {
		err = ErrInjected
	}
	call.End = time.Now()
	if l.recorder != nil {
		l.recorder.add(call)
	}
	return err
}

// DiscoverResult is one scripted Discover outcome.
type DiscoverResult struct {
	Lights []device.Light
	Err    error
}

// Discoverer replays scripted results, repeating the last one when exhausted.
type Discoverer struct {
	mu      sync.Mutex
	results []DiscoverResult
	calls   int
}

var _ device.Discoverer = (*Discoverer)(nil)

// NewDiscoverer creates a discoverer that returns results in order.
func NewDiscoverer(results ...DiscoverResult) *Discoverer {
	return &Discoverer{results: results}
}

func (d *Discoverer) Discover(ctx context.Context, _ string) ([]device.Light, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.calls++
	if len(d.results) == 0 {
		return nil, nil
	}
	i := d.calls - 1
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	r := d.results[i]
	return r.Lights, r.Err
}

// Calls returns how many times Discover ran.
func (d *Discoverer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
