// Package scheduler drives one pattern at a time against real lights.
//
// A run loops over its pattern's steps forever: resolve the step's target
// against current membership, dispatch the action to every resolved light in
// parallel, wait for all of them, then hold for the step's duration. Starting
// a pattern replaces the active one only after the old run, including every
// device call it dispatched, has fully returned.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/ledger"
	"github.com/dokzlo13/lightseq/internal/pattern"
)

// ErrEmptyPattern is returned when starting a pattern with no steps.
var ErrEmptyPattern = errors.New("pattern has no steps")

// DefaultIdlePass is how long a pass that did nothing waits before repeating.
const DefaultIdlePass = 100 * time.Millisecond

// Devices is the live membership a run resolves targets against.
type Devices interface {
	Members() []device.ID
	Light(id device.ID) (device.Light, bool)
}

// Options configures a Scheduler.
type Options struct {
	// IdlePass is waited after a full pass that issued no device calls and
	// held for zero time, so an all-miss pattern cannot spin.
	IdlePass time.Duration
	Ledger   *ledger.Ledger // optional
	Bus      *eventbus.Bus  // optional
}

// Active describes the running pattern.
type Active struct {
	RunID   string    `json:"run_id"`
	Pattern string    `json:"pattern"`
	Since   time.Time `json:"since"`
}

// PatternEvent is published when a run starts or stops.
type PatternEvent struct {
	RunID   string
	Pattern string
	Steps   int
}

type run struct {
	Active
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the single active-pattern slot.
type Scheduler struct {
	devices Devices
	opts    Options

	// startMu serializes Start and Stop.
	startMu sync.Mutex

	mu     sync.RWMutex
	active *run
}

// New creates a scheduler.
func New(devices Devices, opts Options) *Scheduler {
	if opts.IdlePass <= 0 {
		opts.IdlePass = DefaultIdlePass
	}
	return &Scheduler{devices: devices, opts: opts}
}

// Start runs p, replacing any active pattern. The previous run is cancelled
// and awaited first; if ctx ends during that wait Start returns its error and
// p is not started. The steps are copied, so later edits to p do not reach
// the run. It returns the new run ID.
func (s *Scheduler) Start(ctx context.Context, p *pattern.Pattern) (string, error) {
	if len(p.Steps) == 0 {
		return "", ErrEmptyPattern
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	steps := p.Snapshot()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.stopLocked(ctx); err != nil {
		return "", fmt.Errorf("stop previous pattern: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		Active: Active{RunID: uuid.NewString(), Pattern: p.Name, Since: time.Now()},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.active = r
	s.mu.Unlock()

	log.Info().Str("pattern", p.Name).Str("run_id", r.RunID).Int("steps", len(steps)).Msg("Pattern started")
	s.record(ledger.EventPatternStarted, r, map[string]any{"steps": len(steps)})
	s.publish(eventbus.EventPatternStarted, PatternEvent{RunID: r.RunID, Pattern: r.Pattern, Steps: len(steps)})

	go s.loop(runCtx, r, steps)
	return r.RunID, nil
}

// Stop cancels the active pattern and waits until ctx ends for its device
// calls to return. Stopping with nothing active is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Scheduler) stopLocked(ctx context.Context) error {
	s.mu.RLock()
	r := s.active
	s.mu.RUnlock()
	if r == nil {
		return nil
	}

	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		log.Warn().Str("pattern", r.Pattern).Str("run_id", r.RunID).Msg("Pattern did not stop before deadline")
		return ctx.Err()
	}

	s.mu.Lock()
	if s.active == r {
		s.active = nil
	}
	s.mu.Unlock()
	return nil
}

// Active reports the running pattern, if any.
func (s *Scheduler) Active() (Active, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return Active{}, false
	}
	return s.active.Active, true
}

func (s *Scheduler) loop(ctx context.Context, r *run, steps []pattern.Step) {
	var inflight sync.WaitGroup
	passes, dispatched := 0, 0

	defer func() {
		// Calls abandoned by a cancelled step still count as in flight.
		inflight.Wait()
		log.Info().Str("pattern", r.Pattern).Str("run_id", r.RunID).Int("passes", passes).Msg("Pattern stopped")
		s.record(ledger.EventPatternStopped, r, map[string]any{"passes": passes, "calls": dispatched})
		s.publish(eventbus.EventPatternStopped, PatternEvent{RunID: r.RunID, Pattern: r.Pattern, Steps: len(steps)})
		close(r.done)
	}()

	for {
		calls := 0
		var held time.Duration
		for i, step := range steps {
			if ctx.Err() != nil {
				return
			}
			out := s.dispatch(ctx, r, i, step, &inflight)
			calls += len(out.Targets)
			dispatched += len(out.Targets)
			if ctx.Err() != nil {
				return
			}
			s.report(r, out)

			if err := sleep(ctx, step.Duration); err != nil {
				return
			}
			held += step.Duration
		}
		passes++

		if calls == 0 && held == 0 {
			log.Debug().Str("pattern", r.Pattern).Dur("wait", s.opts.IdlePass).Msg("Pass reached no lights, idling")
			if err := sleep(ctx, s.opts.IdlePass); err != nil {
				return
			}
		}
	}
}

func (s *Scheduler) record(eventType ledger.EventType, r *run, payload map[string]any) {
	if s.opts.Ledger == nil {
		return
	}
	if err := s.opts.Ledger.Append(eventType, r.RunID, r.Pattern, payload); err != nil {
		log.Error().Err(err).Str("event", string(eventType)).Msg("Failed to write ledger entry")
	}
}

func (s *Scheduler) publish(eventType eventbus.EventType, payload any) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(eventType, payload)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
