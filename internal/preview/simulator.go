// Package preview plays a pattern against simulated lights.
//
// The simulator follows the scheduler's timing and targeting rules but only
// updates a local color per light. Targets resolve against the light list
// given at construction; membership never changes during a preview.
package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/target"
)

var (
	// ErrStepOutOfRange is returned by Seek for an index outside the pattern.
	ErrStepOutOfRange = errors.New("step index out of range")
	// ErrClosed is returned by commands sent after Run has returned.
	ErrClosed = errors.New("preview closed")
)

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// RGBA is a simulated light color. Alpha carries brightness.
type RGBA struct {
	R, G, B, A uint8
}

// Neutral is the color of a light no step has touched yet.
var Neutral = RGBA{R: 128, G: 128, B: 128, A: 255}

// Off is the color of a light after turn_off.
var Off = RGBA{}

// ColorOf returns the simulated color an action leaves a light in.
func ColorOf(a pattern.Action) RGBA {
	switch a.Kind {
	case pattern.ActionSetColor:
		return RGBA{R: a.Color.R, G: a.Color.G, B: a.Color.B, A: a.Brightness}
	case pattern.ActionSetScene:
		return RGBA{R: 255, G: 255, B: 255, A: a.Brightness}
	default:
		return Off
	}
}

// LightColor is one light in a frame.
type LightColor struct {
	ID    device.ID
	Color RGBA
}

// Frame is emitted whenever simulated colors change. Step is the index of
// the step just applied, or -1 when the preview was reset.
type Frame struct {
	Step   int
	Cursor int
	State  State
	Lights []LightColor
}

// Snapshot is the current simulator state.
type Snapshot struct {
	State  State
	Cursor int
	Steps  int
	Lights []LightColor
}

// DefaultIdlePass is how long playback waits after a pass that held no step
// for any time, matching the scheduler.
const DefaultIdlePass = 100 * time.Millisecond

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithFrameBuffer sets how many frames may queue before new ones are dropped.
func WithFrameBuffer(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.frames = make(chan Frame, n)
		}
	}
}

type command struct {
	fn    func() error
	reply chan error
}

// Simulator is a preview of one pattern. Commands are safe from any goroutine
// once Run is going; all playback state is owned by Run.
type Simulator struct {
	steps  []pattern.Step
	lights []device.ID
	clock  Clock

	cmds   chan command
	frames chan Frame
	done   chan struct{}

	// owned by Run
	state    State
	cursor   int
	timer    Timer
	colors   map[device.ID]RGBA
	passHold time.Duration // hold accumulated since the pass began
}

// New prepares a preview of p over a frozen list of lights.
func New(p *pattern.Pattern, lights []device.ID, opts ...Option) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		steps:  p.Snapshot(),
		lights: append([]device.ID(nil), lights...),
		clock:  realClock{},
		cmds:   make(chan command),
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
		colors: make(map[device.ID]RGBA, len(lights)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetColors()
	return s, nil
}

// Frames delivers color updates. It is closed when Run returns.
func (s *Simulator) Frames() <-chan Frame {
	return s.frames
}

// Run owns playback until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	defer func() {
		s.stopTimer()
		close(s.done)
		close(s.frames)
	}()

	for {
		var fired <-chan time.Time
		if s.timer != nil {
			fired = s.timer.C()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			cmd.reply <- cmd.fn()
		case <-fired:
			s.timer = nil
			s.fire()
		}
	}
}

// Play starts or resumes playback. If no timer is pending the current step
// is applied at once.
func (s *Simulator) Play() error {
	return s.do(func() error {
		if s.state == Playing {
			return nil
		}
		s.state = Playing
		if s.timer == nil {
			s.fire()
		}
		return nil
	})
}

// Pause halts playback and keeps the current colors.
func (s *Simulator) Pause() error {
	return s.do(func() error {
		if s.state != Playing {
			return nil
		}
		s.state = Paused
		s.stopTimer()
		return nil
	})
}

// Restart rewinds to the first step, applying it at once when playing.
func (s *Simulator) Restart() error {
	return s.do(func() error {
		s.cursor = 0
		s.passHold = 0
		if s.state == Playing {
			s.stopTimer()
			s.fire()
		}
		return nil
	})
}

// Seek moves the cursor. While playing, the chosen step is applied on the
// next timer fire rather than immediately.
func (s *Simulator) Seek(index int) error {
	return s.do(func() error {
		if index < 0 || index >= len(s.steps) {
			return fmt.Errorf("%w: %d not in [0,%d)", ErrStepOutOfRange, index, len(s.steps))
		}
		s.cursor = index
		s.passHold = 0
		return nil
	})
}

// Stop halts playback, rewinds, and resets every light to Neutral.
func (s *Simulator) Stop() error {
	return s.do(func() error {
		s.state = Stopped
		s.stopTimer()
		s.cursor = 0
		s.passHold = 0
		s.resetColors()
		s.emit(-1)
		return nil
	})
}

// Snapshot returns the current playback state and colors.
func (s *Simulator) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = Snapshot{State: s.state, Cursor: s.cursor, Steps: len(s.steps), Lights: s.lightColors()}
		return nil
	})
	return snap, err
}

func (s *Simulator) do(fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	}
	return <-cmd.reply
}

// fire applies the step under the cursor, arms the timer for that step's
// hold, and advances the cursor with wraparound.
//
// The timer uses the duration of the step just applied, not the next one:
// a step's duration is how long it stays on the lights. When a full pass
// held for zero time the wrap waits DefaultIdlePass instead.
func (s *Simulator) fire() {
	index := s.cursor
	step := s.steps[index]

	ids, _ := target.Resolve(step.Target, s.lights)
	color := ColorOf(step.Action)
	for _, id := range ids {
		s.colors[id] = color
	}

	hold := step.Duration
	s.passHold += hold
	s.cursor = (index + 1) % len(s.steps)
	if s.cursor == 0 {
		if s.passHold == 0 {
			hold = DefaultIdlePass
		}
		s.passHold = 0
	}
	s.timer = s.clock.NewTimer(hold)
	s.emit(index)
}

func (s *Simulator) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Simulator) resetColors() {
	for _, id := range s.lights {
		s.colors[id] = Neutral
	}
}

func (s *Simulator) lightColors() []LightColor {
	out := make([]LightColor, len(s.lights))
	for i, id := range s.lights {
		out[i] = LightColor{ID: id, Color: s.colors[id]}
	}
	return out
}

func (s *Simulator) emit(step int) {
	f := Frame{Step: step, Cursor: s.cursor, State: s.state, Lights: s.lightColors()}
	select {
	case s.frames <- f:
	default:
		log.Debug().Int("step", step).Msg("Preview frame dropped")
	}
}
