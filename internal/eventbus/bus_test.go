package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToSubscribers(t *testing.T) {
	b := NewWithConfig(2, 10)

	var mu sync.Mutex
	var got []any
	var wg sync.WaitGroup
	wg.Add(2)
	b.Subscribe(EventStepApplied, func(e Event) {
		mu.Lock()
		got = append(got, e.Payload)
		mu.Unlock()
		wg.Done()
	})
	b.Subscribe(EventDiscovery, func(Event) { t.Error("unexpected discovery event") })

	b.Publish(EventStepApplied, 1)
	b.Publish(EventStepApplied, 2)
	wg.Wait()

	b.Close(context.Background())
	assert.ElementsMatch(t, []any{1, 2}, got)
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := NewWithConfig(1, 1)
	called := make(chan struct{}, 1)
	b.Subscribe(EventDeviceState, func(Event) { called <- struct{}{} })

	b.Close(context.Background())
	b.Publish(EventDeviceState, "late")
	b.Close(context.Background())

	select {
	case <-called:
		t.Fatal("handler ran after close")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_FullQueueDrops(t *testing.T) {
	b := NewWithConfig(1, 1)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	b.Subscribe(EventDeviceState, func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	b.Publish(EventDeviceState, 1)
	<-started
	b.Publish(EventDeviceState, 2)
	b.Publish(EventDeviceState, 3)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Close(ctx)
	require.NoError(t, ctx.Err())
}

func TestBus_HandlerPanicIsRecovered(t *testing.T) {
	b := NewWithConfig(1, 4)
	done := make(chan struct{})
	b.Subscribe(EventPatternStarted, func(e Event) {
		if e.Payload == "boom" {
			panic("boom")
		}
		close(done)
	})

	b.Publish(EventPatternStarted, "boom")
	b.Publish(EventPatternStarted, "ok")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	b.Close(context.Background())
}
