package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
)

// Watcher polls a single indicator light on a short fixed interval.
type Watcher struct {
	id     device.ID
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts polling id every interval, handing each fresh state to
// onState. Polls never overlap; a slow poll delays the next tick.
func (r *Registry) Watch(ctx context.Context, id device.ID, interval time.Duration, onState func(device.State)) (*Watcher, error) {
	if _, ok := r.Light(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("watch interval must be positive, got %v", interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{id: id, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st, err := r.Poll(ctx, id)
				if err != nil || ctx.Err() != nil {
					continue
				}
				if onState != nil {
					onState(st)
				}
			}
		}
	}()

	log.Debug().Str("device", string(id)).Dur("interval", interval).Msg("Indicator watcher started")
	return w, nil
}

// Stop signals the watcher and waits up to timeout for it to exit. It
// reports whether the watcher exited in time; if not, the in-flight poll
// finishes in the background and its result is discarded.
func (w *Watcher) Stop(timeout time.Duration) bool {
	w.cancel()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		log.Debug().Str("device", string(w.id)).Msg("Indicator watcher stopped")
		return true
	case <-t.C:
		log.Warn().Str("device", string(w.id)).Dur("timeout", timeout).Msg("Indicator watcher did not stop in time")
		return false
	}
}

// Done is closed when the watcher goroutine has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
