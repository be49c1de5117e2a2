package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/ledger"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/target"
)

// StepOutcome summarizes one dispatched step. It is published as a
// step_applied event.
type StepOutcome struct {
	RunID   string
	Pattern string
	Index   int
	Action  pattern.ActionKind
	Targets []device.ID
	Failed  []device.ID
	Misses  int
	Elapsed time.Duration
}

// dispatch sends the step's action to every resolved light at once and waits
// for all calls to settle or ctx to end. Each call is also tracked by
// inflight so the run can wait for stragglers before it reports done.
func (s *Scheduler) dispatch(ctx context.Context, r *run, index int, step pattern.Step, inflight *sync.WaitGroup) StepOutcome {
	start := time.Now()
	ids, misses := target.Resolve(step.Target, s.devices.Members())

	out := StepOutcome{
		RunID:   r.RunID,
		Pattern: r.Pattern,
		Index:   index,
		Action:  step.Action.Kind,
		Misses:  misses,
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []device.ID
	)
	for _, id := range ids {
		light, ok := s.devices.Light(id)
		if !ok {
			out.Misses++
			continue
		}
		out.Targets = append(out.Targets, id)

		wg.Add(1)
		inflight.Add(1)
		go func(id device.ID, light device.Light) {
			defer inflight.Done()
			defer wg.Done()

			if err := apply(ctx, light, step.Action); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).
					Str("device", string(id)).
					Str("pattern", r.Pattern).
					Int("step", index).
					Msg("Light action failed")
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
		}(id, light)
	}

	settled := make(chan struct{})
	go func() {
		wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-ctx.Done():
		return out
	}

	out.Failed = failed
	out.Elapsed = time.Since(start)
	log.Debug().
		Str("pattern", r.Pattern).
		Int("step", index).
		Str("action", string(step.Action.Kind)).
		Int("targets", len(out.Targets)).
		Int("failed", len(out.Failed)).
		Int("misses", out.Misses).
		Dur("elapsed", out.Elapsed).
		Msg("Step dispatched")
	return out
}

// apply translates a step action into a device call.
func apply(ctx context.Context, light device.Light, a pattern.Action) error {
	if p, on := a.Pilot(); on {
		return light.TurnOn(ctx, p)
	}
	return light.TurnOff(ctx)
}

func (s *Scheduler) report(r *run, out StepOutcome) {
	if len(out.Failed) > 0 {
		failed := make([]string, len(out.Failed))
		for i, id := range out.Failed {
			failed[i] = string(id)
		}
		s.record(ledger.EventStepFailed, r, map[string]any{
			"step":    out.Index,
			"failed":  failed,
			"targets": len(out.Targets),
		})
	}
	s.publish(eventbus.EventStepApplied, out)
}
