package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/registry"
	"github.com/dokzlo13/lightseq/internal/scheduler"
)

type fakeWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestPoint_DeviceState(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Point(eventbus.Event{
		Type: eventbus.EventDeviceState,
		Time: now,
		Payload: registry.DeviceStateEvent{
			ID:    "10.0.0.5",
			Name:  "desk",
			State: device.State{On: true, RGB: &device.RGB{R: 255, G: 10}, Mode: "rgb"},
		},
	})
	require.NotNil(t, p)
	assert.Equal(t, MeasurementDeviceState, p.Name())
	assert.Equal(t, now, p.Time())
	assert.Equal(t, map[string]string{"device_id": "10.0.0.5", "name": "desk", "mode": "rgb"}, tagMap(p))

	fields := fieldMap(p)
	assert.Equal(t, true, fields["on"])
	assert.EqualValues(t, 255, fields["r"])
	assert.EqualValues(t, 0, fields["b"])
}

func TestPoint_DeviceStateWithoutColor(t *testing.T) {
	p := Point(eventbus.Event{Payload: registry.DeviceStateEvent{ID: "a"}})
	require.NotNil(t, p)
	fields := fieldMap(p)
	assert.Len(t, fields, 1)
	assert.Equal(t, false, fields["on"])
}

func TestPoint_Step(t *testing.T) {
	p := Point(eventbus.Event{Payload: scheduler.StepOutcome{
		RunID:   "r1",
		Pattern: "police",
		Index:   3,
		Action:  pattern.ActionSetColor,
		Targets: []device.ID{"a", "b"},
		Failed:  []device.ID{"b"},
		Misses:  1,
		Elapsed: 40 * time.Millisecond,
	}})
	require.NotNil(t, p)
	assert.Equal(t, MeasurementStep, p.Name())
	assert.Equal(t, map[string]string{"pattern": "police", "action": "set_color"}, tagMap(p))

	fields := fieldMap(p)
	assert.EqualValues(t, 2, fields["targets"])
	assert.EqualValues(t, 1, fields["failed"])
	assert.EqualValues(t, 1, fields["misses"])
	assert.EqualValues(t, 40, fields["elapsed_ms"])
	assert.Equal(t, "r1", fields["run_id"])
}

func TestPoint_IgnoresOtherEvents(t *testing.T) {
	assert.Nil(t, Point(eventbus.Event{Payload: scheduler.PatternEvent{RunID: "r1"}}))
}

func TestRecorderAttach(t *testing.T) {
	w := &fakeWriter{}
	bus := eventbus.NewWithConfig(1, 10)
	NewRecorder(w).Attach(bus)

	bus.Publish(eventbus.EventDeviceState, registry.DeviceStateEvent{ID: "a"})
	bus.Publish(eventbus.EventPatternStarted, scheduler.PatternEvent{RunID: "r1"})
	bus.Publish(eventbus.EventStepApplied, scheduler.StepOutcome{RunID: "r1"})

	require.Eventually(t, func() bool { return w.Len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestConnect_Disabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := Connect(ctx, config.InfluxDBConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}
