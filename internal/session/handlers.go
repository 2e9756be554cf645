package session

import (
	"context"
	"math/bits"
	"strings"
	"time"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

type (
	query    func(snap *Snapshot, p protocol.Params) (any, error)
	mutation func(sg *song, p protocol.Params) (any, error)
)

func (s *Session) read(q query) command.Handler {
	return func(_ context.Context, p protocol.Params) (any, error) {
		return q(s.Snapshot(), p)
	}
}

func (s *Session) write(m mutation) command.Handler {
	return func(ctx context.Context, p protocol.Params) (any, error) {
		return s.mutate(ctx, func(sg *song) (any, error) { return m(sg, p) })
	}
}

// Register adds the session's command catalogue to b.
func (s *Session) Register(b *command.Builder) *command.Builder {
	return b.
		Register("get_session_info", command.ReadOnly, s.read(getSessionInfo)).
		Register("get_track_info", command.ReadOnly, s.read(getTrackInfo)).
		Register("list_clips", command.ReadOnly, s.read(listClips)).
		Register("health_check", command.ReadOnly, s.healthCheck).
		Register("create_midi_track", command.Mutating, s.write(createTrack(KindMIDI))).
		Register("create_audio_track", command.Mutating, s.write(createTrack(KindAudio))).
		Register("delete_track", command.Mutating, s.write(deleteTrack)).
		Register("set_track_name", command.Mutating, s.write(setTrackName)).
		Register("set_track_volume", command.Mutating, s.write(setTrackVolume)).
		Register("set_track_panning", command.Mutating, s.write(setTrackPanning)).
		Register("set_track_mute", command.Mutating, s.write(setTrackFlag("mute", func(t *track) *bool { return &t.mute }))).
		Register("set_track_solo", command.Mutating, s.write(setTrackFlag("solo", func(t *track) *bool { return &t.solo }))).
		Register("set_track_arm", command.Mutating, s.write(setTrackFlag("arm", func(t *track) *bool { return &t.arm }))).
		Register("set_tempo", command.Mutating, s.write(setTempo)).
		Register("set_time_signature", command.Mutating, s.write(setTimeSignature)).
		Register("create_clip", command.Mutating, s.write(createClip)).
		Register("delete_clip", command.Mutating, s.write(deleteClip)).
		Register("set_clip_name", command.Mutating, s.write(setClipName)).
		Register("add_notes_to_clip", command.Mutating, s.write(addNotesToClip)).
		Register("fire_clip", command.Mutating, s.write(fireClip)).
		Register("stop_clip", command.Mutating, s.write(stopClip)).
		Register("start_playback", command.Mutating, s.write(setPlaying(true))).
		Register("stop_playback", command.Mutating, s.write(setPlaying(false))).
		Register("create_scene", command.Mutating, s.write(createScene)).
		Register("fire_scene", command.Mutating, s.write(fireScene)).
		Register("get_browser_tree", command.LongRunning, s.getBrowserTree).
		Register("search_loadable_devices", command.LongRunning, s.searchLoadableDevices)
}

// Registry builds the immutable command table for this session.
func (s *Session) Registry() (*command.Registry, error) {
	return s.Register(command.NewBuilder()).Build()
}

// Classes returns the class of every catalogue command, for clients that
// have no session of their own.
func Classes() command.Table {
	reg, err := New(Options{}).Registry()
	if err != nil {
		panic(err)
	}
	return reg.Table()
}

func getSessionInfo(snap *Snapshot, _ protocol.Params) (any, error) {
	return map[string]any{
		"tempo":                 snap.Tempo,
		"signature_numerator":   snap.SignatureNumerator,
		"signature_denominator": snap.SignatureDenominator,
		"track_count":           len(snap.Tracks),
		"scene_count":           len(snap.Scenes),
		"is_playing":            snap.Playing,
		"current_song_time":     snap.SongTime,
		"master_track":          snap.Master,
	}, nil
}

func getTrackInfo(snap *Snapshot, p protocol.Params) (any, error) {
	idx, err := p.Int("track_index", 0)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(snap.Tracks) {
		return nil, errTrackRange
	}
	return snap.Tracks[idx], nil
}

type clipListing struct {
	TrackIndex int     `json:"track_index"`
	TrackName  string  `json:"track_name"`
	ClipIndex  int     `json:"clip_index"`
	ClipName   string  `json:"clip_name"`
	Length     float64 `json:"length"`
}

func listClips(snap *Snapshot, p protocol.Params) (any, error) {
	pattern, err := p.String("track_pattern", "")
	if err != nil {
		return nil, err
	}
	mode, err := p.String("match_mode", "contains")
	if err != nil {
		return nil, err
	}

	clips := []clipListing{}
	for _, t := range snap.Tracks {
		if !nameMatches(t.Name, pattern, mode) {
			continue
		}
		for _, slot := range t.ClipSlots {
			if slot.Clip == nil {
				continue
			}
			clips = append(clips, clipListing{
				TrackIndex: t.Index,
				TrackName:  t.Name,
				ClipIndex:  slot.Index,
				ClipName:   slot.Clip.Name,
				Length:     slot.Clip.Length,
			})
		}
	}
	return map[string]any{"clips": clips, "count": len(clips)}, nil
}

func nameMatches(name, pattern, mode string) bool {
	if pattern == "" {
		return true
	}
	hay, needle := strings.ToLower(name), strings.ToLower(pattern)
	switch mode {
	case "equals":
		return hay == needle
	case "startswith":
		return strings.HasPrefix(hay, needle)
	default:
		return strings.Contains(hay, needle)
	}
}

func (s *Session) healthCheck(context.Context, protocol.Params) (any, error) {
	snap := s.Snapshot()
	return map[string]any{
		"status":         "ok",
		"version":        snap.Version,
		"track_count":    len(snap.Tracks),
		"uptime_seconds": int64(s.Uptime() / time.Second),
	}, nil
}

func createTrack(kind string) mutation {
	return func(sg *song, p protocol.Params) (any, error) {
		idx, err := p.Int("index", -1)
		if err != nil {
			return nil, err
		}
		if idx == -1 {
			idx = len(sg.tracks)
		}
		if idx < 0 || idx > len(sg.tracks) {
			return nil, errTrackRange
		}
		t := sg.insertTrack(idx, kind)
		return map[string]any{"index": idx, "name": t.name}, nil
	}
}

func deleteTrack(sg *song, p protocol.Params) (any, error) {
	idx, err := p.Int("track_index", 0)
	if err != nil {
		return nil, err
	}
	t, err := sg.track(idx)
	if err != nil {
		return nil, err
	}
	sg.tracks = append(sg.tracks[:idx], sg.tracks[idx+1:]...)
	return map[string]any{"deleted": true, "index": idx, "name": t.name}, nil
}

func setTrackName(sg *song, p protocol.Params) (any, error) {
	idx, err := p.Int("track_index", 0)
	if err != nil {
		return nil, err
	}
	name, err := p.String("name", "")
	if err != nil {
		return nil, err
	}
	t, err := sg.track(idx)
	if err != nil {
		return nil, err
	}
	t.name = name
	return map[string]any{"name": t.name}, nil
}

func setTrackVolume(sg *song, p protocol.Params) (any, error) {
	idx, err := p.Int("track_index", 0)
	if err != nil {
		return nil, err
	}
	vol, err := p.Float("volume", defaultVolume)
	if err != nil {
		return nil, err
	}
	t, err := sg.track(idx)
	if err != nil {
		return nil, err
	}
	t.volume = clamp(vol, minVolume, maxVolume)
	return map[string]any{"volume": t.volume, "min": minVolume, "max": maxVolume}, nil
}

func setTrackPanning(sg *song, p protocol.Params) (any, error) {
	idx, err := p.Int("track_index", 0)
	if err != nil {
		return nil, err
	}
	pan, err := p.Float("panning", 0)
	if err != nil {
		return nil, err
	}
	t, err := sg.track(idx)
	if err != nil {
		return nil, err
	}
	t.panning = clamp(pan, minPan, maxPan)
	return map[string]any{"panning": t.panning, "min": minPan, "max": maxPan}, nil
}

func setTrackFlag(key string, field func(*track) *bool) mutation {
	return func(sg *song, p protocol.Params) (any, error) {
		idx, err := p.Int("track_index", 0)
		if err != nil {
			return nil, err
		}
		on, err := p.Bool(key, true)
		if err != nil {
			return nil, err
		}
		t, err := sg.track(idx)
		if err != nil {
			return nil, err
		}
		*field(t) = on
		return map[string]any{key: on}, nil
	}
}

func setTempo(sg *song, p protocol.Params) (any, error) {
	tempo, err := p.Float("tempo", sg.tempo)
	if err != nil {
		return nil, err
	}
	if tempo < minTempo || tempo > maxTempo {
		return nil, command.Invalid("Tempo must be between %g and %g BPM", minTempo, maxTempo)
	}
	sg.tempo = tempo
	return map[string]any{"tempo": sg.tempo}, nil
}

func setTimeSignature(sg *song, p protocol.Params) (any, error) {
	num, err := p.Int("numerator", sg.sigNum)
	if err != nil {
		return nil, err
	}
	den, err := p.Int("denominator", sg.sigDen)
	if err != nil {
		return nil, err
	}
	if num < 1 || num > 99 {
		return nil, command.Invalid("Numerator must be between 1 and 99")
	}
	if den < 1 || den > 16 || bits.OnesCount(uint(den)) != 1 {
		return nil, command.Invalid("Denominator must be 1, 2, 4, 8 or 16")
	}
	sg.sigNum, sg.sigDen = num, den
	return map[string]any{"signature_numerator": num, "signature_denominator": den}, nil
}

func clipIndexes(p protocol.Params) (int, int, error) {
	ti, err := p.Int("track_index", 0)
	if err != nil {
		return 0, 0, err
	}
	ci, err := p.Int("clip_index", 0)
	if err != nil {
		return 0, 0, err
	}
	return ti, ci, nil
}

func createClip(sg *song, p protocol.Params) (any, error) {
	ti, ci, err := clipIndexes(p)
	if err != nil {
		return nil, err
	}
	length, err := p.Float("length", defaultClipLength)
	if err != nil {
		return nil, err
	}
	t, err := sg.slot(ti, ci)
	if err != nil {
		return nil, err
	}
	if t.kind != KindMIDI {
		return nil, command.Invalid("Clips can only be created on MIDI tracks")
	}
	if t.slots[ci] != nil {
		return nil, command.Invalid("Clip slot already has a clip")
	}
	if length <= 0 {
		return nil, command.Invalid("Clip length must be positive")
	}
	t.slots[ci] = &clip{length: length}
	return map[string]any{"created": true, "track_index": ti, "clip_index": ci, "length": length}, nil
}

func deleteClip(sg *song, p protocol.Params) (any, error) {
	ti, ci, err := clipIndexes(p)
	if err != nil {
		return nil, err
	}
	c, err := sg.clip(ti, ci)
	if err != nil {
		return nil, err
	}
	sg.tracks[ti].slots[ci] = nil
	return map[string]any{"deleted": true, "track_index": ti, "clip_index": ci, "name": c.name}, nil
}

func setClipName(sg *song, p protocol.Params) (any, error) {
	ti, ci, err := clipIndexes(p)
	if err != nil {
		return nil, err
	}
	name, err := p.String("name", "")
	if err != nil {
		return nil, err
	}
	c, err := sg.clip(ti, ci)
	if err != nil {
		return nil, err
	}
	c.name = name
	return map[string]any{"name": c.name}, nil
}

func addNotesToClip(sg *song, p protocol.Params) (any, error) {
	ti, ci, err := clipIndexes(p)
	if err != nil {
		return nil, err
	}
	raw, err := p.List("notes")
	if err != nil {
		return nil, err
	}
	c, err := sg.clip(ti, ci)
	if err != nil {
		return nil, err
	}

	notes := make([]Note, 0, len(raw))
	for i, item := range raw {
		n, err := parseNote(i, item)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	c.notes = append(c.notes, notes...)
	return map[string]any{"note_count": len(notes), "total_notes": len(c.notes)}, nil
}

func parseNote(i int, item any) (Note, error) {
	var p protocol.Params
	switch obj := item.(type) {
	case map[string]any:
		p = obj
	case protocol.Params:
		p = obj
	default:
		return Note{}, command.Invalid("Note %d must be an object", i)
	}

	var (
		n   Note
		err error
	)
	if n.Pitch, err = p.Int("pitch", 60); err != nil {
		return Note{}, err
	}
	if n.StartTime, err = p.Float("start_time", 0); err != nil {
		return Note{}, err
	}
	if n.Duration, err = p.Float("duration", 0.25); err != nil {
		return Note{}, err
	}
	if n.Velocity, err = p.Int("velocity", defaultVelocity); err != nil {
		return Note{}, err
	}
	if n.Mute, err = p.Bool("mute", false); err != nil {
		return Note{}, err
	}

	switch {
	case n.Pitch < 0 || n.Pitch > 127:
		return Note{}, command.Invalid("Note %d pitch must be between 0 and 127", i)
	case n.Velocity < 0 || n.Velocity > 127:
		return Note{}, command.Invalid("Note %d velocity must be between 0 and 127", i)
	case n.StartTime < 0:
		return Note{}, command.Invalid("Note %d start_time must not be negative", i)
	case n.Duration <= 0:
		return Note{}, command.Invalid("Note %d duration must be positive", i)
	}
	return n, nil
}

func fireClip(sg *song, p protocol.Params) (any, error) {
	ti, ci, err := clipIndexes(p)
	if err != nil {
		return nil, err
	}
	c, err := sg.clip(ti, ci)
	if err != nil {
		return nil, err
	}
	sg.tracks[ti].launch(ci)
	sg.playing = true
	return map[string]any{"fired": true, "track_index": ti, "clip_index": ci, "clip_name": c.name}, nil
}

func stopClip(sg *song, p protocol.Params) (any, error) {
	ti, ci, err := clipIndexes(p)
	if err != nil {
		return nil, err
	}
	c, err := sg.clip(ti, ci)
	if err != nil {
		return nil, err
	}
	c.playing = false
	return map[string]any{"stopped": true, "track_index": ti, "clip_index": ci}, nil
}

func setPlaying(on bool) mutation {
	return func(sg *song, _ protocol.Params) (any, error) {
		sg.playing = on
		if !on {
			for _, t := range sg.tracks {
				t.launch(-1)
			}
		}
		return map[string]any{"playing": on}, nil
	}
}

func createScene(sg *song, p protocol.Params) (any, error) {
	idx, err := p.Int("index", -1)
	if err != nil {
		return nil, err
	}
	name, err := p.String("name", "")
	if err != nil {
		return nil, err
	}
	if idx == -1 {
		idx = len(sg.scenes)
	}
	if idx < 0 || idx > len(sg.scenes) {
		return nil, errSceneRange
	}

	sg.scenes = append(sg.scenes, nil)
	copy(sg.scenes[idx+1:], sg.scenes[idx:])
	sg.scenes[idx] = &scene{name: name}
	for _, t := range sg.tracks {
		t.slots = append(t.slots, nil)
		copy(t.slots[idx+1:], t.slots[idx:])
		t.slots[idx] = nil
	}
	return map[string]any{"index": idx, "name": name}, nil
}

func fireScene(sg *song, p protocol.Params) (any, error) {
	idx, err := p.Int("index", 0)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(sg.scenes) {
		return nil, errSceneRange
	}
	launched := 0
	for _, t := range sg.tracks {
		if t.slots[idx] != nil {
			t.launch(idx)
			launched++
		}
	}
	sg.playing = true
	return map[string]any{"fired": true, "index": idx, "name": sg.scenes[idx].name, "clips_launched": launched}, nil
}

// pace sleeps for the configured browser delay, returning early if ctx ends.
func (s *Session) pace(ctx context.Context) error {
	if s.opts.BrowserDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.opts.BrowserDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) getBrowserTree(ctx context.Context, p protocol.Params) (any, error) {
	categoryType, err := p.String("category_type", "all")
	if err != nil {
		return nil, err
	}
	maxDepth, err := p.Int("max_depth", 2)
	if err != nil {
		return nil, err
	}
	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	categories := []BrowserItem{}
	for _, c := range s.browser {
		if categoryType != "all" && categoryType != c.key {
			continue
		}
		categories = append(categories, prune(c.item, 0, maxDepth))
	}
	if len(categories) == 0 {
		return nil, command.Invalid("Unknown browser category: %s", categoryType)
	}
	return map[string]any{"type": categoryType, "categories": categories}, nil
}

func (s *Session) searchLoadableDevices(ctx context.Context, p protocol.Params) (any, error) {
	q, err := p.String("query", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q) == "" {
		return nil, command.Invalid("query is required")
	}
	category, err := p.String("category", "all")
	if err != nil {
		return nil, err
	}
	maxItems, err := p.Int("max_items", 200)
	if err != nil {
		return nil, err
	}
	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	needle := strings.ToLower(q)
	results := []searchResult{}
	for _, c := range s.browser {
		if category != "all" && category != c.key {
			continue
		}
		results = search(c.item, c.key, needle, maxItems, results)
		if len(results) >= maxItems {
			break
		}
	}
	return map[string]any{"query": q, "results": results, "count": len(results)}, nil
}
