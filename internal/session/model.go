package session

import "fmt"

const (
	minTempo  = 20.0
	maxTempo  = 999.0
	minVolume = 0.0
	maxVolume = 1.0
	minPan    = -1.0
	maxPan    = 1.0

	defaultVolume     = 0.85
	defaultClipLength = 4.0
	defaultVelocity   = 100
)

// Track kinds.
const (
	KindMIDI  = "midi"
	KindAudio = "audio"
)

// song is the live, mutable model. Only the main loop touches it.
type song struct {
	tempo       float64
	sigNum      int
	sigDen      int
	playing     bool
	time        float64
	masterVol   float64
	masterPan   float64
	tracks      []*track
	scenes      []*scene
	nextTrackID int
}

type track struct {
	name    string
	kind    string
	volume  float64
	panning float64
	mute    bool
	solo    bool
	arm     bool
	slots   []*clip // nil entry is an empty slot
}

type clip struct {
	name    string
	length  float64
	playing bool
	notes   []Note
}

type scene struct {
	name string
}

// Note is one MIDI note in a clip.
type Note struct {
	Pitch     int     `json:"pitch"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	Velocity  int     `json:"velocity"`
	Mute      bool    `json:"mute"`
}

func newSong(tracks, scenes int) *song {
	sg := &song{
		tempo:     120,
		sigNum:    4,
		sigDen:    4,
		masterVol: defaultVolume,
	}
	for i := 0; i < scenes; i++ {
		sg.scenes = append(sg.scenes, &scene{})
	}
	for i := 0; i < tracks; i++ {
		kind := KindMIDI
		if i%2 == 1 {
			kind = KindAudio
		}
		sg.insertTrack(len(sg.tracks), kind)
	}
	return sg
}

func (sg *song) insertTrack(index int, kind string) *track {
	sg.nextTrackID++
	label := "MIDI"
	if kind == KindAudio {
		label = "Audio"
	}
	t := &track{
		name:   fmt.Sprintf("%d-%s", sg.nextTrackID, label),
		kind:   kind,
		volume: defaultVolume,
		slots:  make([]*clip, len(sg.scenes)),
	}
	sg.tracks = append(sg.tracks, nil)
	copy(sg.tracks[index+1:], sg.tracks[index:])
	sg.tracks[index] = t
	return t
}

func (sg *song) track(index int) (*track, error) {
	if index < 0 || index >= len(sg.tracks) {
		return nil, errTrackRange
	}
	return sg.tracks[index], nil
}

// slot validates both indexes and returns the track holding the slot.
func (sg *song) slot(trackIndex, clipIndex int) (*track, error) {
	t, err := sg.track(trackIndex)
	if err != nil {
		return nil, err
	}
	if clipIndex < 0 || clipIndex >= len(t.slots) {
		return nil, errClipRange
	}
	return t, nil
}

func (sg *song) clip(trackIndex, clipIndex int) (*clip, error) {
	t, err := sg.slot(trackIndex, clipIndex)
	if err != nil {
		return nil, err
	}
	c := t.slots[clipIndex]
	if c == nil {
		return nil, errNoClip
	}
	return c, nil
}

// launch starts c and stops every other clip on the same track.
func (t *track) launch(index int) {
	for i, c := range t.slots {
		if c != nil {
			c.playing = i == index
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
