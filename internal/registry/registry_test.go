package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightseq/internal/db"
	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/device/devicetest"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/state"
)

var errNetwork = errors.New("network unreachable")

func lights(ids ...device.ID) []device.Light {
	out := make([]device.Light, len(ids))
	for i, id := range ids {
		out[i] = devicetest.NewLight(id, nil)
	}
	return out
}

func TestRefresh_ExhaustsAfterThreeFailures(t *testing.T) {
	disc := devicetest.NewDiscoverer(
		devicetest.DiscoverResult{Err: errNetwork},
		devicetest.DiscoverResult{},
		devicetest.DiscoverResult{Err: errNetwork},
		devicetest.DiscoverResult{Lights: lights("a")},
	)
	r := New(disc, Options{RetryDelay: time.Millisecond})

	found, err := r.Refresh(context.Background(), "255.255.255.255")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscoveryExhausted)
	assert.ErrorIs(t, err, errNetwork)
	assert.Nil(t, found)
	assert.Equal(t, 3, disc.Calls())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, disc.Calls(), "no automatic retry after exhaustion")
	assert.Zero(t, r.Len())
}

func TestRefresh_EmptyCountsAsFailure(t *testing.T) {
	disc := devicetest.NewDiscoverer(
		devicetest.DiscoverResult{},
		devicetest.DiscoverResult{Lights: lights("a", "b")},
	)
	r := New(disc, Options{RetryDelay: time.Millisecond})

	found, err := r.Refresh(context.Background(), "255.255.255.255")
	require.NoError(t, err)
	assert.Equal(t, []device.ID{"a", "b"}, found)
	assert.Equal(t, 2, disc.Calls())
}

func TestRefresh_KeepsStaleEntries(t *testing.T) {
	disc := devicetest.NewDiscoverer(
		devicetest.DiscoverResult{Lights: lights("a", "b")},
		devicetest.DiscoverResult{Lights: lights("b", "c")},
	)
	r := New(disc, Options{RetryDelay: time.Millisecond})

	_, err := r.Refresh(context.Background(), "bcast")
	require.NoError(t, err)
	require.NoError(t, r.Rename("a", "Desk"))

	found, err := r.Refresh(context.Background(), "bcast")
	require.NoError(t, err)
	assert.Equal(t, []device.ID{"b", "c"}, found)
	assert.Equal(t, []device.ID{"a", "b", "c"}, r.Members())

	e, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Desk", e.Name)
}

func TestRefresh_CancelledDuringRetryDelay(t *testing.T) {
	disc := devicetest.NewDiscoverer(devicetest.DiscoverResult{Err: errNetwork})
	r := New(disc, Options{RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := r.Refresh(ctx, "bcast")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDiscoveryExhausted)
	assert.Equal(t, 1, disc.Calls())
}

func TestRefresh_PublishesDiscovery(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 8)
	got := make(chan DiscoveryEvent, 1)
	bus.Subscribe(eventbus.EventDiscovery, func(e eventbus.Event) { got <- e.Payload.(DiscoveryEvent) })

	r := New(devicetest.NewDiscoverer(devicetest.DiscoverResult{Lights: lights("a")}), Options{Bus: bus})
	_, err := r.Refresh(context.Background(), "bcast")
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, []device.ID{"a"}, ev.Found)
		assert.Equal(t, 1, ev.Known)
		assert.Equal(t, 1, ev.Attempts)
	case <-time.After(time.Second):
		t.Fatal("no discovery event")
	}
	bus.Close(context.Background())
}

func TestPoll_FailureKeepsLastState(t *testing.T) {
	l := devicetest.NewLight("a", nil)
	r := New(nil, Options{})
	r.Add(l)

	on := device.State{On: true, RGB: &device.RGB{R: 1}, Mode: "rgb"}
	l.SetState(on)
	_, err := r.Poll(context.Background(), "a")
	require.NoError(t, err)

	l.SetFail(true)
	_, err = r.Poll(context.Background(), "a")
	assert.ErrorIs(t, err, devicetest.ErrInjected)

	e, _ := r.Get("a")
	assert.True(t, e.Polled)
	assert.Equal(t, on, e.State)

	_, err = r.Poll(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestPollAll_Concurrent(t *testing.T) {
	r := New(nil, Options{})
	var ls []*devicetest.Light
	for _, id := range []device.ID{"a", "b", "c", "d"} {
		l := devicetest.NewLight(id, nil)
		l.SetDelay(50 * time.Millisecond)
		ls = append(ls, l)
		r.Add(l)
	}
	ls[2].SetFail(true)

	start := time.Now()
	failed := r.PollAll(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, 1, failed)
	assert.Less(t, elapsed, 150*time.Millisecond, "polls must run in parallel")
}

func TestSnapshot_IsACopy(t *testing.T) {
	l := devicetest.NewLight("a", nil)
	l.SetState(device.State{On: true, RGB: &device.RGB{R: 9}})
	r := New(nil, Options{})
	r.Add(l)
	_, err := r.Poll(context.Background(), "a")
	require.NoError(t, err)

	snap := r.Snapshot()
	snap[0].State.RGB.R = 100
	snap[0].Name = "changed"

	e, _ := r.Get("a")
	assert.Equal(t, uint8(9), e.State.RGB.R)
	assert.Equal(t, "a", e.Name)
}

func TestSnapshot_ConcurrentWithPolls(t *testing.T) {
	r := New(nil, Options{})
	for _, id := range []device.ID{"a", "b", "c"} {
		r.Add(devicetest.NewLight(id, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			r.PollAll(ctx)
		}
	}()
	for i := 0; i < 200; i++ {
		assert.Len(t, r.Snapshot(), 3)
	}
	cancel()
	wg.Wait()
}

func TestRename_PersistsAndRestores(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()
	names := state.NewTypedStore[DeviceName](state.NewStore(database.DB), NameKind)

	r := New(nil, Options{Names: names})
	r.Add(devicetest.NewLight("10.0.0.7", nil))
	require.NoError(t, r.Rename("10.0.0.7", "Shelf"))
	assert.ErrorIs(t, r.Rename("nope", "x"), ErrUnknownDevice)

	restored := New(nil, Options{Names: names})
	restored.Add(devicetest.NewLight("10.0.0.7", nil), devicetest.NewLight("10.0.0.8", nil))
	snap := restored.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Shelf", snap[0].Name)
	assert.Equal(t, "10.0.0.8", snap[1].Name)
}

func TestWatch_StopIsBounded(t *testing.T) {
	l := devicetest.NewLight("ind", nil)
	l.SetState(device.State{On: true})
	r := New(nil, Options{})
	r.Add(l)

	var seen atomic.Int32
	w, err := r.Watch(context.Background(), "ind", 5*time.Millisecond, func(device.State) { seen.Add(1) })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return seen.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.Stop(time.Second))

	after := seen.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, seen.Load())
}

func TestWatch_StopTimesOutOnStuckPoll(t *testing.T) {
	l := devicetest.NewLight("ind", nil)
	r := New(nil, Options{})
	r.Add(l)

	// The fake honours ctx, so make the poll ignore cancellation by
	// stalling the callback instead.
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	w, err := r.Watch(context.Background(), "ind", time.Millisecond, func(device.State) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
	})
	require.NoError(t, err)
	<-entered

	start := time.Now()
	assert.False(t, w.Stop(30*time.Millisecond))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(block)
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher never exited")
	}
}

func TestWatch_UnknownDevice(t *testing.T) {
	r := New(nil, Options{})
	_, err := r.Watch(context.Background(), "x", time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestWatch_RejectsNonPositiveInterval(t *testing.T) {
	r := New(nil, Options{})
	r.Add(devicetest.NewLight("ind", nil))

	for _, interval := range []time.Duration{0, -20 * time.Millisecond} {
		w, err := r.Watch(context.Background(), "ind", interval, nil)
		assert.Error(t, err, "interval %v", interval)
		assert.Nil(t, w)
	}
}
