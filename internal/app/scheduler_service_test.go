package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/db"
	"github.com/dokzlo13/lightseq/internal/device/devicetest"
	"github.com/dokzlo13/lightseq/internal/ledger"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/registry"
)

func newSchedulerService(t *testing.T, autostart string) (*SchedulerService, *devicetest.Recorder) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blink.json"), []byte(blinkDoc), 0o644))
	lib, _ := pattern.LoadDir(dir)

	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	cfg.Patterns.Autostart = autostart

	rec := &devicetest.Recorder{}
	reg := registry.New(nil, registry.Options{})
	reg.Add(devicetest.NewLight("10.0.0.1", rec))

	svc := NewSchedulerService(cfg, reg, lib, ledger.New(database.DB), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return svc, rec
}

func TestSchedulerService_Autostart(t *testing.T) {
	svc, rec := newSchedulerService(t, "blink")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	active, ok := svc.Scheduler.Active()
	require.True(t, ok)
	assert.Equal(t, "blink", active.Pattern)
	require.Eventually(t, func() bool { return rec.Len() > 0 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerService_AutostartMissing(t *testing.T) {
	svc, _ := newSchedulerService(t, "ghost")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestSchedulerService_NoAutostart(t *testing.T) {
	svc, _ := newSchedulerService(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	_, ok := svc.Scheduler.Active()
	assert.False(t, ok)
}
