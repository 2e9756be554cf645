package session

// Snapshot is an immutable copy of the song published after every change.
// Read-only commands only ever see snapshots.
type Snapshot struct {
	Version              uint64      `json:"version"`
	Tempo                float64     `json:"tempo"`
	SignatureNumerator   int         `json:"signature_numerator"`
	SignatureDenominator int         `json:"signature_denominator"`
	Playing              bool        `json:"is_playing"`
	SongTime             float64     `json:"current_song_time"`
	Master               MasterInfo  `json:"master_track"`
	Tracks               []TrackInfo `json:"tracks"`
	Scenes               []SceneInfo `json:"scenes"`
}

type MasterInfo struct {
	Name    string  `json:"name"`
	Volume  float64 `json:"volume"`
	Panning float64 `json:"panning"`
}

type TrackInfo struct {
	Index     int        `json:"index"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Volume    float64    `json:"volume"`
	Panning   float64    `json:"panning"`
	Mute      bool       `json:"mute"`
	Solo      bool       `json:"solo"`
	Arm       bool       `json:"arm"`
	ClipSlots []SlotInfo `json:"clip_slots"`
}

type SlotInfo struct {
	Index   int       `json:"index"`
	HasClip bool      `json:"has_clip"`
	Clip    *ClipInfo `json:"clip"`
}

type ClipInfo struct {
	Name      string  `json:"name"`
	Length    float64 `json:"length"`
	IsPlaying bool    `json:"is_playing"`
	NoteCount int     `json:"note_count"`
}

type SceneInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func (sg *song) snapshot(version uint64) *Snapshot {
	snap := &Snapshot{
		Version:              version,
		Tempo:                sg.tempo,
		SignatureNumerator:   sg.sigNum,
		SignatureDenominator: sg.sigDen,
		Playing:              sg.playing,
		SongTime:             sg.time,
		Master:               MasterInfo{Name: "Master", Volume: sg.masterVol, Panning: sg.masterPan},
		Tracks:               make([]TrackInfo, len(sg.tracks)),
		Scenes:               make([]SceneInfo, len(sg.scenes)),
	}
	for i, t := range sg.tracks {
		info := TrackInfo{
			Index:     i,
			Name:      t.name,
			Kind:      t.kind,
			Volume:    t.volume,
			Panning:   t.panning,
			Mute:      t.mute,
			Solo:      t.solo,
			Arm:       t.arm,
			ClipSlots: make([]SlotInfo, len(t.slots)),
		}
		for j, c := range t.slots {
			slot := SlotInfo{Index: j, HasClip: c != nil}
			if c != nil {
				slot.Clip = &ClipInfo{Name: c.name, Length: c.length, IsPlaying: c.playing, NoteCount: len(c.notes)}
			}
			info.ClipSlots[j] = slot
		}
		snap.Tracks[i] = info
	}
	for i, sc := range sg.scenes {
		snap.Scenes[i] = SceneInfo{Index: i, Name: sc.name}
	}
	return snap
}
