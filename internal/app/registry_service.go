package app

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/registry"
	"github.com/dokzlo13/lightseq/internal/state"
	"github.com/dokzlo13/lightseq/internal/wiz"
)

// RegistryService owns the device registry: startup discovery, periodic
// polling and the optional indicator watcher.
type RegistryService struct {
	cfg      *config.Config
	wiz      *wiz.Client
	Registry *registry.Registry

	watcher *registry.Watcher
	ready   atomic.Bool
}

// NewRegistryService creates the registry with persisted display names.
func NewRegistryService(cfg *config.Config, client *wiz.Client, store *state.Store, bus *eventbus.Bus) *RegistryService {
	reg := registry.New(client, registry.Options{
		Attempts:   cfg.Network.DiscoveryAttempts,
		RetryDelay: cfg.Network.DiscoveryRetryDelay.Duration(),
		Names:      state.NewTypedStore[registry.DeviceName](store, registry.NameKind),
		Bus:        bus,
	})
	return &RegistryService{cfg: cfg, wiz: client, Registry: reg}
}

// Start registers static lights, runs discovery and the first poll, then
// starts background polling. Exhausted discovery is not fatal: the service
// continues with whatever lights are known.
func (s *RegistryService) Start(ctx context.Context) error {
	for _, ip := range s.cfg.Network.Lights {
		s.Registry.Add(s.wiz.Bulb(ip))
	}

	if _, err := s.Registry.Refresh(ctx, s.cfg.Network.Broadcast); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, registry.ErrDiscoveryExhausted) {
			return err
		}
		log.Warn().Int("known", s.Registry.Len()).Msg("Continuing without discovered lights")
	}

	s.Registry.PollAll(ctx)
	s.ready.Store(true)

	go s.Registry.Run(ctx, s.cfg.Registry.PollInterval.Duration())

	if id := s.cfg.Registry.Indicator; id != "" {
		w, err := s.Registry.Watch(ctx, device.ID(id), s.cfg.Registry.IndicatorInterval.Duration(), nil)
		if err != nil {
			log.Warn().Err(err).Str("device", id).Msg("Indicator light not available")
		} else {
			s.watcher = w
		}
	}
	return nil
}

// Ready reports whether startup discovery has finished.
func (s *RegistryService) Ready() bool {
	return s.ready.Load()
}

// Stop stops the indicator watcher within the configured bound.
func (s *RegistryService) Stop() {
	if s.watcher != nil {
		s.watcher.Stop(s.cfg.Registry.StopTimeout.Duration())
	}
}
