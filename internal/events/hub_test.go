package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSinceRespectsRing(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(TypeCommandCompleted, CommandCompleted{Command: "set_tempo", Status: "succeeded"})
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{all[0].ID, all[1].ID, all[2].ID})

	tail := h.SnapshotSince(4)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(5), tail[0].ID)

	assert.Empty(t, h.SnapshotSince(5))
}

func TestPublishMarshalsPayload(t *testing.T) {
	h := NewHub(0)
	h.Publish(TypeCommandCompleted, CommandCompleted{
		DispatchID: "d1",
		Command:    "fire_clip",
		Class:      "mutating",
		Status:     "failed",
		Message:    "Track index out of range",
		DurationMS: 4,
	})
	h.Publish("noop", nil)
	h.Publish("bad", func() {})

	evs := h.SnapshotSince(0)
	require.Len(t, evs, 3)

	var got CommandCompleted
	require.NoError(t, json.Unmarshal(evs[0].Data, &got))
	assert.Equal(t, "fire_clip", got.Command)
	assert.Equal(t, "Track index out of range", got.Message)

	assert.JSONEq(t, `{}`, string(evs[1].Data))
	assert.JSONEq(t, `{}`, string(evs[2].Data), "unmarshalable payload falls back to an empty object")
}

func TestSubscribe(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(TypeCommandCompleted, nil)
	select {
	case ev := <-ch:
		assert.Equal(t, TypeCommandCompleted, ev.Type)
		assert.Equal(t, int64(1), ev.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestConcurrentPublishKeepsWindowOrdered(t *testing.T) {
	h := NewHub(64)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				h.Publish(TypeCommandCompleted, nil)
			}
		}()
	}
	wg.Wait()

	evs := h.SnapshotSince(0)
	require.Len(t, evs, 64)
	for i, ev := range evs {
		assert.Equal(t, int64(200-64+1+i), ev.ID)
	}
	assert.Empty(t, h.SnapshotSince(1000))
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(8)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBacklog*2; i++ {
			h.Publish(TypeCommandCompleted, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(subscriberBacklog), h.Dropped())
}
