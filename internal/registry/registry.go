// Package registry keeps the set of known lights and their last observed state.
//
// Entries are created on first discovery and never removed. Reads return
// copies, so callers may hold a snapshot while pollers keep writing.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/state"
)

var (
	// ErrDiscoveryExhausted is returned by Refresh when every attempt failed.
	ErrDiscoveryExhausted = errors.New("discovery exhausted")
	// ErrUnknownDevice is returned for ids the registry has never seen.
	ErrUnknownDevice = errors.New("unknown device")

	errEmptyDiscovery = errors.New("discovery returned no lights")
)

// Defaults for Options fields left zero.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// NameKind is the state store kind holding display names.
const NameKind = "device_name"

// DeviceName is the persisted display name of a light.
type DeviceName struct {
	Name string `json:"name"`
}

// Entry is a copy of one registry record.
type Entry struct {
	ID        device.ID    `json:"id"`
	Name      string       `json:"name"`
	State     device.State `json:"state"`
	Polled    bool         `json:"polled"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// DeviceStateEvent is published after every successful poll.
type DeviceStateEvent struct {
	ID    device.ID
	Name  string
	State device.State
}

// DiscoveryEvent is published after every successful refresh.
type DiscoveryEvent struct {
	Found    []device.ID
	Known    int
	Attempts int
}

// Options configures a Registry.
type Options struct {
	Attempts   int
	RetryDelay time.Duration
	Names      *state.TypedStore[DeviceName] // optional
	Bus        *eventbus.Bus                 // optional
}

type record struct {
	light     device.Light
	name      string
	state     device.State
	polled    bool
	updatedAt time.Time
}

// Registry is the live directory of known lights.
type Registry struct {
	discoverer device.Discoverer
	opts       Options

	mu      sync.RWMutex
	records map[device.ID]*record
	order   []device.ID
	names   map[device.ID]string

	refreshMu sync.Mutex
}

// New creates a registry. Persisted display names are restored if a name
// store is configured.
func New(discoverer device.Discoverer, opts Options) *Registry {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	r := &Registry{
		discoverer: discoverer,
		opts:       opts,
		records:    make(map[device.ID]*record),
		names:      make(map[device.ID]string),
	}
	if opts.Names != nil {
		stored, err := opts.Names.GetAll()
		if err != nil {
			log.Error().Err(err).Msg("Failed to restore device names")
		}
		for id, n := range stored {
			r.names[device.ID(id)] = n.Name
		}
		if len(stored) > 0 {
			log.Debug().Int("names", len(stored)).Msg("Restored device names")
		}
	}
	return r
}

// Refresh runs discovery, retrying up to the configured number of attempts
// with a pause between them. An empty result counts as a failed attempt.
// Discovered lights are merged into the registry; lights missing from the
// result keep their entries. It returns the ids found by the successful attempt.
func (r *Registry) Refresh(ctx context.Context, broadcast string) ([]device.ID, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		lights, err := r.discoverer.Discover(ctx, broadcast)
		if err == nil && len(lights) == 0 {
			err = errEmptyDiscovery
		}
		if err == nil {
			found := r.merge(lights)
			known := r.Len()
			log.Info().
				Str("broadcast", broadcast).
				Int("found", len(found)).
				Int("known", known).
				Int("attempt", attempt).
				Msg("Discovery completed")
			r.publish(eventbus.EventDiscovery, DiscoveryEvent{Found: found, Known: known, Attempts: attempt})
			return found, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("of", r.opts.Attempts).Msg("Discovery attempt failed")

		if attempt < r.opts.Attempts {
			if err := sleep(ctx, r.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	log.Error().Err(lastErr).Int("attempts", r.opts.Attempts).Msg("Discovery exhausted")
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrDiscoveryExhausted, r.opts.Attempts, lastErr)
}

func (r *Registry) merge(lights []device.Light) []device.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := make([]device.ID, 0, len(lights))
	for _, l := range lights {
		id := l.ID()
		found = append(found, id)
		if rec, ok := r.records[id]; ok {
			rec.light = l
			continue
		}
		name := r.names[id]
		if name == "" {
			name = string(id)
		}
		r.records[id] = &record{light: l, name: name}
		r.order = append(r.order, id)
		log.Debug().Str("device", string(id)).Str("name", name).Msg("New light registered")
	}
	return found
}

// Add registers lights without discovery, e.g. from static configuration.
func (r *Registry) Add(lights ...device.Light) {
	r.merge(lights)
}

// Poll fetches one light's state. On failure the last known state is kept
// and the error is returned.
func (r *Registry) Poll(ctx context.Context, id device.ID) (device.State, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	var light device.Light
	if ok {
		light = rec.light
	}
	r.mu.RUnlock()
	if !ok {
		return device.State{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	st, err := light.UpdateState(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("device", string(id)).Msg("Failed to poll light, keeping last state")
		}
		return device.State{}, err
	}

	r.mu.Lock()
	rec.state = copyState(st)
	rec.polled = true
	rec.updatedAt = time.Now()
	name := rec.name
	r.mu.Unlock()

	r.publish(eventbus.EventDeviceState, DeviceStateEvent{ID: id, Name: name, State: copyState(st)})
	return st, nil
}

// PollAll polls every known light concurrently and waits for all of them.
// It returns the number of lights that failed.
func (r *Registry) PollAll(ctx context.Context) int {
	ids := r.Members()

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id device.ID) {
			defer wg.Done()
			if _, err := r.Poll(ctx, id); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	log.Debug().Int("lights", len(ids)).Int("failed", failed).Msg("Polled lights")
	return failed
}

// Rename sets a light's display name. The name is persisted when a name
// store is configured; the in-memory rename applies even if that fails.
func (r *Registry) Rename(id device.ID, name string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.name = name
		r.names[id] = name
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	if r.opts.Names != nil {
		if err := r.opts.Names.Set(string(id), DeviceName{Name: name}); err != nil {
			return fmt.Errorf("persist name for %s: %w", id, err)
		}
	}
	log.Info().Str("device", string(id)).Str("name", name).Msg("Light renamed")
	return nil
}

// Snapshot returns copies of all entries in discovery order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entryLocked(id))
	}
	return entries
}

// Get returns a copy of one entry.
func (r *Registry) Get(id device.ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.records[id]; !ok {
		return Entry{}, false
	}
	return r.entryLocked(id), true
}

func (r *Registry) entryLocked(id device.ID) Entry {
	rec := r.records[id]
	return Entry{
		ID:        id,
		Name:      rec.name,
		State:     copyState(rec.state),
		Polled:    rec.polled,
		UpdatedAt: rec.updatedAt,
	}
}

// Members returns the known ids in discovery order.
func (r *Registry) Members() []device.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]device.ID, len(r.order))
	copy(ids, r.order)
	return ids
}

// Light returns the control handle for a known id.
func (r *Registry) Light(id device.ID) (device.Light, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.light, true
}

// Len returns the number of known lights.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Run polls every light on interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Debug().Msg("Periodic polling disabled")
		<-ctx.Done()
		return
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.PollAll(ctx)
			timer.Reset(interval)
		}
	}
}

func (r *Registry) publish(eventType eventbus.EventType, payload any) {
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(eventType, payload)
	}
}

func copyState(s device.State) device.State {
	if s.RGB != nil {
		rgb := *s.RGB
		s.RGB = &rgb
	}
	return s
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
