package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/db"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/history"
	"github.com/dokzlo13/lightseq/internal/ledger"
	"github.com/dokzlo13/lightseq/internal/mqtt"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/state"
	"github.com/dokzlo13/lightseq/internal/wiz"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Store  *state.Store
	Bus    *eventbus.Bus

	// Light control
	Wiz       *wiz.Client
	Library   *pattern.Library
	Registry  *RegistryService
	Scheduler *SchedulerService

	// Outputs, connected on Start when enabled
	MQTT    *mqtt.Client
	History *history.Client
	Status  *StatusService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)
	s.Store = state.NewStore(database.DB)
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)

	s.Wiz = wiz.NewClient(wiz.Options{
		Port:          cfg.Network.Port,
		CallTimeout:   cfg.Network.CallTimeout.Duration(),
		RateLimitRPS:  cfg.Network.RateLimitRPS,
		DiscoveryWait: cfg.Network.DiscoveryWait.Duration(),
	})

	// A library with broken documents still serves the valid ones.
	s.Library, _ = pattern.LoadDir(cfg.Patterns.Dir)

	s.Registry = NewRegistryService(cfg, s.Wiz, s.Store, s.Bus)
	s.Scheduler = NewSchedulerService(cfg, s.Registry.Registry, s.Library, s.Ledger, s.Bus)
	s.Status = NewStatusService(cfg, NewStatusHandler(s.Registry.Registry, s.Scheduler.Scheduler, s.Library, cfg.Network.Broadcast, s.Registry.Ready))

	return s, nil
}

// Start starts all services in the correct order. Outputs are attached to
// the bus before discovery so the first states are mirrored.
func (s *Services) Start(ctx context.Context) error {
	if s.cfg.MQTT.Enabled {
		client, err := mqtt.Connect(s.cfg.MQTT)
		if err != nil {
			return err
		}
		s.MQTT = client
		mqtt.NewBridge(client, client.Topics()).Attach(s.Bus)
	}

	if s.cfg.InfluxDB.Enabled {
		client, err := history.Connect(ctx, s.cfg.InfluxDB)
		if err != nil {
			return err
		}
		s.History = client
		history.NewRecorder(client).Attach(s.Bus)
	}

	s.Status.Start(ctx)

	if err := s.Registry.Start(ctx); err != nil {
		return err
	}
	return s.Scheduler.Start(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := s.Scheduler.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	s.Registry.Stop()
	s.Close()
	return errors.Join(errs...)
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.History != nil {
		s.History.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
