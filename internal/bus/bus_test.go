package bus

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBus(t *testing.T) {
	b := NewBus()
	defer b.Close()

	assert.Equal(t, DefaultHistorySize, b.historySize)
	assert.Equal(t, 0, b.SubscriptionsCount())
}

func TestSubscribeAndPublish(t *testing.T) {
	b := NewBus()
	defer b.Close()

	got := make(chan Event, 1)
	id := b.Subscribe(EventSessionOpened, func(e Event) { got <- e })
	require.NotEmpty(t, id)

	require.NoError(t, b.Publish(NewEvent(EventMessageIn, "s1")))
	require.NoError(t, b.Publish(NewEvent(EventSessionOpened, "s1")))

	select {
	case e := <-got:
		assert.Equal(t, EventSessionOpened, e.Type)
		assert.Equal(t, "s1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWildcardSubscriptionKeepsOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var (
		mu    sync.Mutex
		types []EventType
	)
	done := make(chan struct{})
	b.Subscribe("", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
		if len(types) == len(KnownEventTypes) {
			close(done)
		}
	})

	for _, et := range KnownEventTypes {
		require.NoError(t, b.Publish(NewEvent(et, "s1")))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for events")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, KnownEventTypes, types)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var calls atomic.Int32
	id := b.Subscribe(EventMessageIn, func(Event) { calls.Add(1) })
	require.NoError(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionsCount())

	require.NoError(t, b.Publish(NewEvent(EventMessageIn, "s1")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	assert.Error(t, b.Unsubscribe(id))
}

func TestHistory(t *testing.T) {
	b := NewBusWithConfig(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		e := NewEvent(EventMessageIn, "s1")
		e.Turn = i + 1
		require.NoError(t, b.Publish(e))
	}

	history := b.History()
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].Turn)
	assert.Equal(t, 5, history[2].Turn)

	last := b.HistorySlice(2)
	require.Len(t, last, 2)
	assert.Equal(t, 4, last[0].Turn)

	assert.Len(t, b.HistorySlice(10), 3)
	assert.Empty(t, b.HistorySlice(-1))
}

func TestHistory_DropsContent(t *testing.T) {
	b := NewBus()
	defer b.Close()

	got := make(chan Event, 1)
	b.Subscribe(EventMessageIn, func(e Event) { got <- e })

	in := NewEvent(EventMessageIn, "s1")
	in.Turn = 1
	in.Content = "my secret is 1234"
	require.NoError(t, b.Publish(in))

	select {
	case e := <-got:
		assert.Equal(t, "my secret is 1234", e.Content)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	history := b.History()
	require.Len(t, history, 1)
	assert.Empty(t, history[0].Content)
	assert.Equal(t, 1, history[0].Turn)
	assert.Equal(t, in.ID, history[0].ID)
}

func TestSubscribeInline_NeverDrops(t *testing.T) {
	b := NewBus()
	defer b.Close()

	// a blocked buffered subscriber fills up and starts losing events
	release := make(chan struct{})
	b.Subscribe("", func(Event) { <-release })
	defer close(release)

	var seen int
	id := b.SubscribeInline("", func(Event) { seen++ })
	require.NotEmpty(t, id)

	const burst = 3 * DefaultChannelBuffer
	for i := 0; i < burst; i++ {
		require.NoError(t, b.Publish(NewEvent(EventMessageOut, "s1")))
	}

	assert.Equal(t, burst, seen)
	assert.Positive(t, b.Dropped())

	require.NoError(t, b.Unsubscribe(id))
	require.NoError(t, b.Publish(NewEvent(EventMessageOut, "s1")))
	assert.Equal(t, burst, seen)
}

func TestClose(t *testing.T) {
	b := NewBus()
	b.Subscribe("", func(Event) {})

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), ErrClosed)
	assert.ErrorIs(t, b.Publish(NewEvent(EventMessageIn, "s1")), ErrClosed)
	assert.Empty(t, b.Subscribe("", func(Event) {}))
	assert.Equal(t, 0, b.SubscriptionsCount())
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent(EventMessageIn, "s1")
	c := NewEvent(EventMessageIn, "s1")
	assert.NotEqual(t, a.ID, c.ID)
	assert.True(t, strings.HasPrefix(a.ID, "evt_"))
}

func TestObserver_ReplaysAndStreams(t *testing.T) {
	b := NewBus()
	defer b.Close()

	opened := NewEvent(EventSessionOpened, "s1")
	require.NoError(t, b.Publish(opened))

	obs := NewObserver(b, DefaultObserverConfig())
	srv := httptest.NewServer(obs)
	defer srv.Close()
	defer obs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var e Event
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	}

	assert.Equal(t, opened.ID, read().ID)

	require.Eventually(t, func() bool { return obs.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	out := NewEvent(EventMessageOut, "s1")
	out.Content = "The doctor is in."
	require.NoError(t, b.Publish(out))

	got := read()
	assert.Equal(t, EventMessageOut, got.Type)
	assert.Equal(t, "The doctor is in.", got.Content)
}

func TestObserver_ReplayDisabledByQuery(t *testing.T) {
	b := NewBus()
	defer b.Close()
	require.NoError(t, b.Publish(NewEvent(EventSessionOpened, "old")))

	obs := NewObserver(b, DefaultObserverConfig())
	srv := httptest.NewServer(obs)
	defer srv.Close()
	defer obs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?replay=false", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return obs.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Publish(NewEvent(EventSessionClosed, "new")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "new", e.SessionID)
}
