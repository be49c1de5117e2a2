// Package history records device states and step outcomes as InfluxDB points.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/registry"
	"github.com/dokzlo13/lightseq/internal/scheduler"
)

const defaultPingTimeout = 5 * time.Second

// Measurement names.
const (
	MeasurementDeviceState = "light_state"
	MeasurementStep        = "pattern_step"
)

var (
	// ErrDisabled is returned by Connect when history is switched off.
	ErrDisabled = errors.New("history: influxdb disabled")
	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("history: connection failed")
)

// PointWriter is the part of the InfluxDB write API the recorder needs.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder turns bus events into points. Writes are batched and never block.
type Recorder struct {
	w PointWriter
}

// NewRecorder creates a recorder on top of w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w}
}

// Attach subscribes the recorder to device states and step outcomes.
func (r *Recorder) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventDeviceState, r.Handle)
	bus.Subscribe(eventbus.EventStepApplied, r.Handle)
}

// Handle writes the point for ev, if it has one.
func (r *Recorder) Handle(ev eventbus.Event) {
	if p := Point(ev); p != nil {
		r.w.WritePoint(p)
	}
}

// Point converts an event into a point, or nil for events not recorded.
func Point(ev eventbus.Event) *write.Point {
	switch p := ev.Payload.(type) {
	case registry.DeviceStateEvent:
		fields := map[string]interface{}{"on": p.State.On}
		if p.State.RGB != nil {
			fields["r"] = int(p.State.RGB.R)
			fields["g"] = int(p.State.RGB.G)
			fields["b"] = int(p.State.RGB.B)
		}
		tags := map[string]string{"device_id": string(p.ID)}
		if p.Name != "" {
			tags["name"] = p.Name
		}
		if p.State.Mode != "" {
			tags["mode"] = p.State.Mode
		}
		return write.NewPoint(MeasurementDeviceState, tags, fields, ev.Time)
	case scheduler.StepOutcome:
		return write.NewPoint(
			MeasurementStep,
			map[string]string{"pattern": p.Pattern, "action": string(p.Action)},
			map[string]interface{}{
				"run_id":     p.RunID,
				"index":      p.Index,
				"targets":    len(p.Targets),
				"failed":     len(p.Failed),
				"misses":     p.Misses,
				"elapsed_ms": p.Elapsed.Milliseconds(),
			},
			ev.Time,
		)
	default:
		return nil
	}
}

// Client owns the InfluxDB connection behind a Recorder.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Connect pings the server and opens a non-blocking, batched write API.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval.Duration().Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{client: client, writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket)}
	go func(errs <-chan error) {
		for err := range errs {
			log.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}(c.writeAPI.Errors())

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("InfluxDB connected")
	return c, nil
}

// WritePoint queues p for the next batch.
func (c *Client) WritePoint(p *write.Point) {
	c.writeAPI.WritePoint(p)
}

// Close flushes pending points and closes the connection.
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}
