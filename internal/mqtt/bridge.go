package mqtt

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/registry"
	"github.com/dokzlo13/lightseq/internal/scheduler"
)

// Publisher is the part of Client the bridge needs.
type Publisher interface {
	Publish(topic string, payload any, retained bool) error
}

// Message is one outgoing publish.
type Message struct {
	Topic    string
	Payload  any
	Retained bool
}

// DeviceStateMessage is published on Topics.DeviceState.
type DeviceStateMessage struct {
	ID        device.ID    `json:"id"`
	Name      string       `json:"name,omitempty"`
	State     device.State `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
}

// DiscoveryMessage is published on Topics.Discovery.
type DiscoveryMessage struct {
	Found     []device.ID `json:"found"`
	Known     int         `json:"known"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

// PatternMessage is published on Topics.Pattern. Running is false once the
// run has stopped.
type PatternMessage struct {
	RunID     string    `json:"run_id"`
	Pattern   string    `json:"pattern"`
	Steps     int       `json:"steps"`
	Running   bool      `json:"running"`
	Timestamp time.Time `json:"timestamp"`
}

// StepMessage is published on Topics.Steps.
type StepMessage struct {
	RunID     string      `json:"run_id"`
	Pattern   string      `json:"pattern"`
	Index     int         `json:"index"`
	Action    string      `json:"action"`
	Targets   []device.ID `json:"targets"`
	Failed    []device.ID `json:"failed,omitempty"`
	Misses    int         `json:"misses,omitempty"`
	ElapsedMs int64       `json:"elapsed_ms"`
	Timestamp time.Time   `json:"timestamp"`
}

// Bridge forwards bus events to a Publisher.
type Bridge struct {
	pub    Publisher
	topics Topics
}

// NewBridge creates a bridge publishing under topics.
func NewBridge(pub Publisher, topics Topics) *Bridge {
	return &Bridge{pub: pub, topics: topics}
}

// Attach subscribes the bridge to every event type it mirrors.
func (b *Bridge) Attach(bus *eventbus.Bus) {
	for _, t := range []eventbus.EventType{
		eventbus.EventDeviceState,
		eventbus.EventDiscovery,
		eventbus.EventPatternStarted,
		eventbus.EventPatternStopped,
		eventbus.EventStepApplied,
	} {
		bus.Subscribe(t, b.Handle)
	}
}

// Handle publishes the message for ev, if any. Failures are logged.
func (b *Bridge) Handle(ev eventbus.Event) {
	msg, ok := b.Message(ev)
	if !ok {
		return
	}
	if err := b.pub.Publish(msg.Topic, msg.Payload, msg.Retained); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic).Msg("MQTT publish failed")
	}
}

// Message maps an event to its outgoing message. Unknown events and
// payloads of the wrong type yield false.
func (b *Bridge) Message(ev eventbus.Event) (Message, bool) {
	switch p := ev.Payload.(type) {
	case registry.DeviceStateEvent:
		return Message{
			Topic:    b.topics.DeviceState(p.ID),
			Payload:  DeviceStateMessage{ID: p.ID, Name: p.Name, State: p.State, Timestamp: ev.Time},
			Retained: true,
		}, true
	case registry.DiscoveryEvent:
		return Message{
			Topic:   b.topics.Discovery(),
			Payload: DiscoveryMessage{Found: p.Found, Known: p.Known, Attempts: p.Attempts, Timestamp: ev.Time},
		}, true
	case scheduler.PatternEvent:
		return Message{
			Topic: b.topics.Pattern(),
			Payload: PatternMessage{
				RunID:     p.RunID,
				Pattern:   p.Pattern,
				Steps:     p.Steps,
				Running:   ev.Type == eventbus.EventPatternStarted,
				Timestamp: ev.Time,
			},
			Retained: true,
		}, true
	case scheduler.StepOutcome:
		return Message{
			Topic: b.topics.Steps(),
			Payload: StepMessage{
				RunID:     p.RunID,
				Pattern:   p.Pattern,
				Index:     p.Index,
				Action:    string(p.Action),
				Targets:   p.Targets,
				Failed:    p.Failed,
				Misses:    p.Misses,
				ElapsedMs: p.Elapsed.Milliseconds(),
				Timestamp: ev.Time,
			},
		}, true
	default:
		return Message{}, false
	}
}
