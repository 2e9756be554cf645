package session

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/host"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "text")
	os.Exit(m.Run())
}

var mainCtx = host.WithMainThread(context.Background())

type harness struct {
	s   *Session
	reg *command.Registry
}

func newHarness(t *testing.T, opts Options) harness {
	t.Helper()
	s := New(opts)
	reg, err := s.Registry()
	require.NoError(t, err)
	return harness{s: s, reg: reg}
}

// call invokes name as the main loop would for bridged classes and as a
// network goroutine would for read-only ones.
func (h harness) call(t *testing.T, name string, params protocol.Params) (any, error) {
	t.Helper()
	e, ok := h.reg.Lookup(name)
	require.True(t, ok, "command %s not registered", name)
	ctx := context.Background()
	if e.Class.Bridged() {
		ctx = mainCtx
	}
	return e.Bind(params)(ctx)
}

func (h harness) must(t *testing.T, name string, params protocol.Params) map[string]any {
	t.Helper()
	out, err := h.call(t, name, params)
	require.NoError(t, err, name)

	// Round-trip through JSON the way the envelope would.
	data, err := json.Marshal(out)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestCatalogueClasses(t *testing.T) {
	h := newHarness(t, Options{})

	want := map[command.Class][]string{
		command.ReadOnly: {"get_session_info", "get_track_info", "list_clips", "health_check"},
		command.Mutating: {
			"create_midi_track", "create_audio_track", "delete_track", "set_track_name",
			"set_track_volume", "set_track_panning", "set_track_mute", "set_track_solo", "set_track_arm",
			"set_tempo", "set_time_signature", "create_clip", "delete_clip", "set_clip_name",
			"add_notes_to_clip", "fire_clip", "stop_clip", "start_playback", "stop_playback",
			"create_scene", "fire_scene",
		},
		command.LongRunning: {"get_browser_tree", "search_loadable_devices"},
	}

	total := 0
	for class, names := range want {
		for _, name := range names {
			c, ok := h.reg.Class(name)
			require.True(t, ok, name)
			assert.Equal(t, class, c, name)
			total++
		}
	}
	assert.Equal(t, total, h.reg.Len())
	assert.Equal(t, h.reg.Table(), Classes())
}

func TestInitialSession(t *testing.T) {
	h := newHarness(t, Options{Tracks: 3, Scenes: 4})

	info := h.must(t, "get_session_info", nil)
	assert.Equal(t, 120.0, info["tempo"])
	assert.Equal(t, 3.0, info["track_count"])
	assert.Equal(t, 4.0, info["scene_count"])
	assert.Equal(t, false, info["is_playing"])

	snap := h.s.Snapshot()
	require.Len(t, snap.Tracks, 3)
	assert.Equal(t, "1-MIDI", snap.Tracks[0].Name)
	assert.Equal(t, KindAudio, snap.Tracks[1].Kind)
	assert.Len(t, snap.Tracks[2].ClipSlots, 4)

	health := h.must(t, "health_check", nil)
	assert.Equal(t, "ok", health["status"])
}

func TestMutationRequiresMainLoop(t *testing.T) {
	h := newHarness(t, Options{})
	e, _ := h.reg.Lookup("set_tempo")

	_, err := e.Bind(protocol.Params{"tempo": 90})(context.Background())
	assert.ErrorIs(t, err, ErrOffMainLoop)
	assert.Equal(t, 120.0, h.s.Snapshot().Tempo)
}

func TestClipWorkflow(t *testing.T) {
	h := newHarness(t, Options{})
	before := h.s.Snapshot()

	created := h.must(t, "create_midi_track", protocol.Params{"index": -1})
	assert.Equal(t, 2.0, created["index"])
	assert.Equal(t, "3-MIDI", created["name"])

	h.must(t, "set_track_name", protocol.Params{"track_index": 2, "name": "Bass"})
	h.must(t, "create_clip", protocol.Params{"track_index": 2, "clip_index": 1, "length": 8.0})
	h.must(t, "set_clip_name", protocol.Params{"track_index": 2, "clip_index": 1, "name": "Groove"})

	added := h.must(t, "add_notes_to_clip", protocol.Params{
		"track_index": 2,
		"clip_index":  1,
		"notes": []any{
			map[string]any{"pitch": json.Number("36"), "start_time": json.Number("0"), "duration": json.Number("0.5"), "velocity": json.Number("110")},
			protocol.Params{"pitch": 43, "start_time": 1.0},
		},
	})
	assert.Equal(t, 2.0, added["note_count"])

	fired := h.must(t, "fire_clip", protocol.Params{"track_index": 2, "clip_index": 1})
	assert.Equal(t, "Groove", fired["clip_name"])

	track := h.must(t, "get_track_info", protocol.Params{"track_index": 2})
	assert.Equal(t, "Bass", track["name"])
	slots := track["clip_slots"].([]any)
	slot := slots[1].(map[string]any)
	assert.Equal(t, true, slot["has_clip"])
	clip := slot["clip"].(map[string]any)
	assert.Equal(t, 8.0, clip["length"])
	assert.Equal(t, true, clip["is_playing"])
	assert.Equal(t, 2.0, clip["note_count"])

	listing := h.must(t, "list_clips", protocol.Params{"track_pattern": "ba", "match_mode": "startswith"})
	assert.Equal(t, 1.0, listing["count"])

	assert.True(t, h.s.Snapshot().Playing, "firing a clip starts the transport")
	assert.Len(t, before.Tracks, 2, "earlier snapshots are never modified")

	h.must(t, "stop_playback", nil)
	assert.False(t, h.s.Snapshot().Tracks[2].ClipSlots[1].Clip.IsPlaying)

	deleted := h.must(t, "delete_clip", protocol.Params{"track_index": 2, "clip_index": 1})
	assert.Equal(t, "Groove", deleted["name"])
	_, err := h.call(t, "fire_clip", protocol.Params{"track_index": 2, "clip_index": 1})
	assert.EqualError(t, err, "validation: No clip in slot")
}

func TestValidationMessages(t *testing.T) {
	h := newHarness(t, Options{})

	cases := []struct {
		name    string
		command string
		params  protocol.Params
		message string
	}{
		{"track out of range", "delete_track", protocol.Params{"track_index": 9}, "Track index out of range"},
		{"negative track", "get_track_info", protocol.Params{"track_index": -1}, "Track index out of range"},
		{"clip out of range", "create_clip", protocol.Params{"track_index": 0, "clip_index": 99}, "Clip index out of range"},
		{"audio clip", "create_clip", protocol.Params{"track_index": 1, "clip_index": 0}, "Clips can only be created on MIDI tracks"},
		{"scene out of range", "fire_scene", protocol.Params{"index": 8}, "Scene index out of range"},
		{"tempo too low", "set_tempo", protocol.Params{"tempo": 5}, "Tempo must be between 20 and 999 BPM"},
		{"bad denominator", "set_time_signature", protocol.Params{"numerator": 7, "denominator": 6}, "Denominator must be 1, 2, 4, 8 or 16"},
		{"bad type", "set_tempo", protocol.Params{"tempo": "fast"}, `parameter "tempo" must be number, got string`},
		{"fractional index", "delete_track", protocol.Params{"track_index": 1.5}, `parameter "track_index" must be integer, got float64`},
		{"empty query", "search_loadable_devices", protocol.Params{"query": " "}, "query is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.call(t, tc.command, tc.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, protocol.ErrValidation)
			assert.Equal(t, tc.message, protocol.MessageOf(err))
		})
	}
}

func TestNoteValidation(t *testing.T) {
	h := newHarness(t, Options{})
	h.must(t, "create_clip", protocol.Params{"track_index": 0, "clip_index": 0})

	_, err := h.call(t, "add_notes_to_clip", protocol.Params{
		"notes": []any{map[string]any{"pitch": 200}},
	})
	assert.Equal(t, "Note 0 pitch must be between 0 and 127", protocol.MessageOf(err))

	_, err = h.call(t, "add_notes_to_clip", protocol.Params{"notes": []any{"C4"}})
	assert.Equal(t, "Note 0 must be an object", protocol.MessageOf(err))

	assert.Equal(t, 0, h.s.Snapshot().Tracks[0].ClipSlots[0].Clip.NoteCount, "failed mutations publish nothing")
}

func TestTransportAndMixer(t *testing.T) {
	h := newHarness(t, Options{})

	assert.Equal(t, 128.0, h.must(t, "set_tempo", protocol.Params{"tempo": 128})["tempo"])
	sig := h.must(t, "set_time_signature", protocol.Params{"numerator": 7, "denominator": 8})
	assert.Equal(t, 7.0, sig["signature_numerator"])

	vol := h.must(t, "set_track_volume", protocol.Params{"track_index": 0, "volume": 3.0})
	assert.Equal(t, 1.0, vol["volume"], "volume is clamped")
	pan := h.must(t, "set_track_panning", protocol.Params{"track_index": 1, "panning": -0.25})
	assert.Equal(t, -0.25, pan["panning"])

	assert.Equal(t, true, h.must(t, "set_track_mute", protocol.Params{"track_index": 0, "mute": true})["mute"])
	assert.Equal(t, false, h.must(t, "set_track_solo", protocol.Params{"track_index": 0, "solo": false})["solo"])
	assert.Equal(t, true, h.must(t, "set_track_arm", protocol.Params{"track_index": 1})["arm"])

	h.must(t, "start_playback", nil)
	snap := h.s.Snapshot()
	assert.True(t, snap.Playing)
	assert.Equal(t, 128.0, snap.Tempo)
	assert.Equal(t, 8, snap.SignatureDenominator)
	assert.True(t, snap.Tracks[0].Mute)
	assert.True(t, snap.Tracks[1].Arm)
}

func TestScenes(t *testing.T) {
	h := newHarness(t, Options{Scenes: 2})

	created := h.must(t, "create_scene", protocol.Params{"index": 0, "name": "Intro"})
	assert.Equal(t, 0.0, created["index"])

	snap := h.s.Snapshot()
	require.Len(t, snap.Scenes, 3)
	assert.Equal(t, "Intro", snap.Scenes[0].Name)
	for _, tr := range snap.Tracks {
		assert.Len(t, tr.ClipSlots, 3)
	}

	h.must(t, "create_clip", protocol.Params{"track_index": 0, "clip_index": 0})
	fired := h.must(t, "fire_scene", protocol.Params{"index": 0})
	assert.Equal(t, "Intro", fired["name"])
	assert.Equal(t, 1.0, fired["clips_launched"])
	assert.True(t, h.s.Snapshot().Tracks[0].ClipSlots[0].Clip.IsPlaying)

	h.must(t, "create_audio_track", protocol.Params{"index": 0})
	assert.Len(t, h.s.Snapshot().Tracks[0].ClipSlots, 3, "new tracks get a slot per scene")
	assert.Equal(t, KindAudio, h.s.Snapshot().Tracks[0].Kind)
}

func TestBrowser(t *testing.T) {
	h := newHarness(t, Options{})

	tree := h.must(t, "get_browser_tree", protocol.Params{"category_type": "audio_effects"})
	cats := tree["categories"].([]any)
	require.Len(t, cats, 1)
	assert.Equal(t, "Audio Effects", cats[0].(map[string]any)["name"])

	all := h.must(t, "get_browser_tree", protocol.Params{"max_depth": 0})
	for _, c := range all["categories"].([]any) {
		assert.Nil(t, c.(map[string]any)["children"], "depth 0 prunes children")
	}

	found := h.must(t, "search_loadable_devices", protocol.Params{"query": "COMP"})
	assert.Equal(t, 2.0, found["count"])

	limited := h.must(t, "search_loadable_devices", protocol.Params{"query": "a", "max_items": 3})
	assert.Equal(t, 3.0, limited["count"])

	_, err := h.call(t, "get_browser_tree", protocol.Params{"category_type": "plugins"})
	assert.Equal(t, "Unknown browser category: plugins", protocol.MessageOf(err))
}

func TestBrowserDelayHonoursContext(t *testing.T) {
	h := newHarness(t, Options{BrowserDelay: time.Hour})
	e, _ := h.reg.Lookup("get_browser_tree")

	ctx, cancel := context.WithTimeout(mainCtx, 10*time.Millisecond)
	defer cancel()
	_, err := e.Bind(nil)(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTickAdvancesSongTime(t *testing.T) {
	h := newHarness(t, Options{})

	h.s.Tick(mainCtx)
	time.Sleep(5 * time.Millisecond)
	h.s.Tick(mainCtx)
	assert.Zero(t, h.s.Snapshot().SongTime, "stopped transport does not advance")

	h.must(t, "start_playback", nil)
	h.s.Tick(mainCtx)
	time.Sleep(20 * time.Millisecond)
	h.s.Tick(mainCtx)
	assert.Greater(t, h.s.Snapshot().SongTime, 0.0)

	v := h.s.Snapshot().Version
	h.s.Tick(context.Background())
	assert.Equal(t, v, h.s.Snapshot().Version, "tick off the main loop is ignored")
}

func TestReadsDoNotRaceWithMainLoop(t *testing.T) {
	s := New(Options{})
	reg, err := s.Registry()
	require.NoError(t, err)

	loop := host.NewMainLoop(host.LoopOptions{TickInterval: time.Millisecond, Tick: s.Tick})
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()
	bridge := host.NewBridge(loop, host.BridgeOptions{})

	setTempo, _ := reg.Lookup("set_tempo")
	getInfo, _ := reg.Lookup("get_session_info")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := bridge.Call(context.Background(), "set_tempo", command.Mutating,
				setTempo.Bind(protocol.Params{"tempo": 100 + i}))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := bridge.Inline(context.Background(), "get_session_info", getInfo.Bind(nil))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 149.0, s.Snapshot().Tempo)
}
