package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/dispatch"
	dispatchmocks "github.com/mattjoyce/livebridge/internal/dispatch/mocks"
	"github.com/mattjoyce/livebridge/internal/events"
	"github.com/mattjoyce/livebridge/internal/host"
	hostmocks "github.com/mattjoyce/livebridge/internal/host/mocks"
	"github.com/mattjoyce/livebridge/internal/journal"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "text")
	os.Exit(m.Run())
}

// memJournal collects entries in memory.
type memJournal struct {
	entries chan journal.Entry
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(chan journal.Entry, 16)}
}

func (j *memJournal) Record(_ context.Context, e journal.Entry) error {
	j.entries <- e
	return nil
}

func (j *memJournal) next(t *testing.T) journal.Entry {
	t.Helper()
	select {
	case e := <-j.entries:
		return e
	default:
		t.Fatal("no journal entry recorded")
		return journal.Entry{}
	}
}

type fixture struct {
	dispatcher *dispatch.Dispatcher
	journal    *memJournal
	hub        *events.Hub
}

func newFixture(t *testing.T, sched host.Scheduler, opts host.BridgeOptions, b *command.Builder) fixture {
	t.Helper()
	reg, err := b.Build()
	require.NoError(t, err)

	j := newMemJournal()
	hub := events.NewHub(16)
	d := dispatch.New(reg, host.NewBridge(sched, opts), dispatch.Options{Journal: j, Events: hub})
	return fixture{dispatcher: d, journal: j, hub: hub}
}

func startLoop(t *testing.T) *host.MainLoop {
	t.Helper()
	loop := host.NewMainLoop(host.LoopOptions{})
	require.NoError(t, loop.Start(context.Background()))
	t.Cleanup(loop.Stop)
	return loop
}

func decodeResult(t *testing.T, resp *protocol.Response, v any) {
	t.Helper()
	require.Equal(t, protocol.StatusSuccess, resp.Status, "message: %s", resp.Message)
	require.NoError(t, json.Unmarshal(resp.Result, v))
}

func TestReadOnlyRunsInline(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := hostmocks.NewMockScheduler(ctrl)
	// No RunSoon expectation: a read-only command must never be scheduled.

	var onMain atomic.Bool
	b := command.NewBuilder().Register("get_session_info", command.ReadOnly,
		func(ctx context.Context, _ protocol.Params) (any, error) {
			onMain.Store(host.OnMainThread(ctx))
			return map[string]any{"tempo": 120.0, "track_count": 2}, nil
		})
	f := newFixture(t, sched, host.BridgeOptions{}, b)

	resp := f.dispatcher.Dispatch(context.Background(), &protocol.Request{Type: "get_session_info"})

	var got map[string]any
	decodeResult(t, resp, &got)
	assert.Equal(t, map[string]any{"tempo": 120.0, "track_count": 2.0}, got)
	assert.False(t, onMain.Load())

	e := f.journal.next(t)
	assert.Equal(t, "get_session_info", e.Command)
	assert.Equal(t, "read_only", e.Class)
	assert.Equal(t, journal.StatusSucceeded, e.Status)
	assert.NotEmpty(t, e.ID)
}

func TestMutatingRunsOnMainLoop(t *testing.T) {
	var (
		onMain atomic.Bool
		tempo  float64 = 120
	)
	b := command.NewBuilder().Register("set_tempo", command.Mutating,
		func(ctx context.Context, p protocol.Params) (any, error) {
			onMain.Store(host.OnMainThread(ctx))
			v, err := p.Float("tempo", tempo)
			if err != nil {
				return nil, err
			}
			tempo = v
			return map[string]any{"tempo": tempo}, nil
		})
	f := newFixture(t, startLoop(t), host.BridgeOptions{}, b)

	req, err := protocol.DecodeRequest([]byte(`{"type":"set_tempo","params":{"tempo":128.0}}`))
	require.NoError(t, err)
	resp := f.dispatcher.Dispatch(context.Background(), req)

	var got map[string]float64
	decodeResult(t, resp, &got)
	assert.Equal(t, 128.0, got["tempo"])
	assert.True(t, onMain.Load())

	e := f.journal.next(t)
	assert.Equal(t, "mutating", e.Class)
	assert.Equal(t, journal.StatusSucceeded, e.Status)
}

func TestUnknownCommandInvokesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := hostmocks.NewMockScheduler(ctrl)

	var invoked atomic.Bool
	b := command.NewBuilder().Register("set_tempo", command.Mutating,
		func(context.Context, protocol.Params) (any, error) {
			invoked.Store(true)
			return nil, nil
		})
	f := newFixture(t, sched, host.BridgeOptions{}, b)

	resp := f.dispatcher.Dispatch(context.Background(), &protocol.Request{Type: "frobnicate"})
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "Unknown command: frobnicate", resp.Message)
	assert.Empty(t, resp.Result)
	assert.False(t, invoked.Load())

	e := f.journal.next(t)
	assert.Equal(t, journal.StatusUnknown, e.Status)
	assert.Equal(t, "", e.Class)

	evs := f.hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeCommandCompleted, evs[0].Type)
}

func TestHandlerErrorsBecomeEnvelopes(t *testing.T) {
	b := command.NewBuilder().
		Register("delete_track", command.Mutating, func(context.Context, protocol.Params) (any, error) {
			return nil, command.Invalid("Track index out of range")
		}).
		Register("get_track_info", command.ReadOnly, func(context.Context, protocol.Params) (any, error) {
			panic("nil track")
		}).
		Register("list_clips", command.ReadOnly, func(context.Context, protocol.Params) (any, error) {
			return nil, errors.New("")
		}).
		Register("get_browser_tree", command.LongRunning, func(context.Context, protocol.Params) (any, error) {
			return make(chan int), nil
		})
	f := newFixture(t, startLoop(t), host.BridgeOptions{}, b)
	ctx := context.Background()

	resp := f.dispatcher.Dispatch(ctx, &protocol.Request{Type: "delete_track", Params: protocol.Params{"track_index": json.Number("7")}})
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "Track index out of range", resp.Message)
	assert.Equal(t, journal.StatusFailed, f.journal.next(t).Status)

	resp = f.dispatcher.Dispatch(ctx, &protocol.Request{Type: "get_track_info"})
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "nil track", resp.Message)

	resp = f.dispatcher.Dispatch(ctx, &protocol.Request{Type: "list_clips"})
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.UnknownErrorMessage, resp.Message)

	resp = f.dispatcher.Dispatch(ctx, &protocol.Request{Type: "get_browser_tree"})
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "encode result")
}

func TestStalledMainLoopTimesOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := hostmocks.NewMockScheduler(ctrl)
	sched.EXPECT().RunSoon(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	b := command.NewBuilder().Register("create_clip", command.Mutating,
		func(context.Context, protocol.Params) (any, error) { return "never", nil })
	f := newFixture(t, sched, host.BridgeOptions{Timeout: 30 * time.Millisecond}, b)

	start := time.Now()
	resp := f.dispatcher.Dispatch(context.Background(), &protocol.Request{Type: "create_clip"})
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "Timeout waiting for operation to complete", resp.Message)

	e := f.journal.next(t)
	assert.Equal(t, journal.StatusTimedOut, e.Status)
	assert.GreaterOrEqual(t, e.Duration, 30*time.Millisecond)
}

func TestReadOnlyIsNotBlockedByBusyMainLoop(t *testing.T) {
	release := make(chan struct{})
	b := command.NewBuilder().
		Register("get_browser_tree", command.LongRunning, func(context.Context, protocol.Params) (any, error) {
			<-release
			return "tree", nil
		}).
		Register("health_check", command.ReadOnly, func(context.Context, protocol.Params) (any, error) {
			return "ok", nil
		})
	f := newFixture(t, startLoop(t), host.BridgeOptions{}, b)

	slow := make(chan *protocol.Response, 1)
	go func() {
		slow <- f.dispatcher.Dispatch(context.Background(), &protocol.Request{Type: "get_browser_tree"})
	}()

	var got string
	decodeResult(t, f.dispatcher.Dispatch(context.Background(), &protocol.Request{Type: "health_check"}), &got)
	assert.Equal(t, "ok", got)

	close(release)
	select {
	case resp := <-slow:
		decodeResult(t, resp, &got)
		assert.Equal(t, "tree", got)
	case <-time.After(2 * time.Second):
		t.Fatal("long-running command never completed")
	}
}

func TestHandleFrame(t *testing.T) {
	var seen protocol.Params
	b := command.NewBuilder().Register("health_check", command.ReadOnly,
		func(_ context.Context, p protocol.Params) (any, error) {
			seen = p
			return map[string]string{"status": "ok"}, nil
		})
	f := newFixture(t, startLoop(t), host.BridgeOptions{}, b)
	ctx := dispatch.WithRemote(context.Background(), "127.0.0.1:40000")

	resp, err := f.dispatcher.HandleFrame(ctx, []byte(`{"type":"health_check"}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.NotNil(t, seen)
	assert.Empty(t, seen)
	assert.Equal(t, "127.0.0.1:40000", f.journal.next(t).Remote)

	resp, err = f.dispatcher.HandleFrame(ctx, []byte(`{"params":{}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrProtocol)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.NotEmpty(t, resp.Message)

	resp, err = f.dispatcher.HandleFrame(ctx, []byte(`{"type":"health_check","params":[1]}`))
	require.Error(t, err)
	assert.Equal(t, protocol.StatusError, resp.Status)
}

func TestJournalFailureDoesNotAffectResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := dispatchmocks.NewMockRecorder(ctrl)
	rec.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, e journal.Entry) error {
			assert.Equal(t, "health_check", e.Command)
			assert.NoError(t, ctx.Err(), "journal context outlives a cancelled dispatch")
			return errors.New("disk full")
		})

	reg, err := command.NewBuilder().Register("health_check", command.ReadOnly,
		func(context.Context, protocol.Params) (any, error) { return true, nil }).Build()
	require.NoError(t, err)

	d := dispatch.New(reg, host.NewBridge(startLoop(t), host.BridgeOptions{}), dispatch.Options{Journal: rec})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := d.Dispatch(ctx, &protocol.Request{Type: "health_check"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Same(t, reg, d.Registry())
}

func TestDispatchWithoutCollaborators(t *testing.T) {
	reg, err := command.NewBuilder().Register("start_playback", command.Mutating,
		func(context.Context, protocol.Params) (any, error) { return nil, nil }).Build()
	require.NoError(t, err)

	d := dispatch.New(reg, host.NewBridge(startLoop(t), host.BridgeOptions{}), dispatch.Options{})
	resp := d.Dispatch(context.Background(), &protocol.Request{Type: "start_playback"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.JSONEq(t, `null`, string(resp.Result))
}
