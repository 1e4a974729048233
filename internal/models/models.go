package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StemID names one playable audio source of a track.
type StemID string

const (
	StemMain   StemID = "main"
	StemVocal  StemID = "vocal"
	StemBass   StemID = "bass"
	StemKick   StemID = "kick"
	StemHihats StemID = "hihats"
	StemPiano  StemID = "piano"
	StemGuitar StemID = "guitar"
	StemOther  StemID = "other"
)

// Stems lists the isolated stems in mixer order, excluding [StemMain].
var Stems = []StemID{StemVocal, StemBass, StemKick, StemHihats, StemPiano, StemGuitar, StemOther}

// MidiStems lists the stems the backend transcribes to MIDI.
var MidiStems = []StemID{StemBass, StemPiano, StemGuitar}

// Label returns the display label of a stem.
func (s StemID) Label() string {
	switch s {
	case StemMain:
		return "MAIN"
	case StemVocal:
		return "VOCALS"
	case StemHihats:
		return "HATS"
	case StemOther:
		return "SYNTH"
	default:
		return string(bytes.ToUpper([]byte(s)))
	}
}

// ParseStem resolves a stem name, accepting "hats" and "vocals" as aliases.
func ParseStem(name string) (StemID, error) {
	switch name {
	case "vocals":
		return StemVocal, nil
	case "hats":
		return StemHihats, nil
	}
	id := StemID(name)
	if id == StemMain {
		return id, nil
	}
	for _, s := range Stems {
		if s == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown stem %q", name)
}

// Meta holds track identity and tag metadata. Filename is the identity key.
type Meta struct {
	Filename string `json:"filename"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	CoverArt string `json:"cover_art,omitempty"` // data URL
}

// Flex is a JSON value that may arrive as either a number or a pre-formatted string.
type Flex struct {
	Num   *float64
	Str   string
	valid bool
}

// FlexNum returns a numeric [Flex].
func FlexNum(v float64) Flex { return Flex{Num: &v, valid: true} }

// FlexStr returns a string [Flex].
func FlexStr(s string) Flex { return Flex{Str: s, valid: true} }

// IsZero reports whether the value was absent or null.
func (f Flex) IsZero() bool { return !f.valid }

// String renders the value, with numbers formatted compactly.
func (f Flex) String() string {
	if f.Num != nil {
		return strconv.FormatFloat(*f.Num, 'f', -1, 64)
	}
	return f.Str
}

func (f *Flex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Flex{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexStr(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected number or string: %w", err)
	}
	*f = FlexNum(n)
	return nil
}

func (f Flex) MarshalJSON() ([]byte, error) {
	switch {
	case !f.valid:
		return []byte("null"), nil
	case f.Num != nil:
		return json.Marshal(*f.Num)
	default:
		return json.Marshal(f.Str)
	}
}

// MixPoints marks where a DJ can mix in and out.
type MixPoints struct {
	IntroEnd   Flex `json:"intro_end"`
	Drop       Flex `json:"drop"`
	OutroStart Flex `json:"outro_start"`
}

// Descriptors carries perceptual descriptors of a track.
type Descriptors struct {
	Mood         string `json:"mood,omitempty"`
	DynamicRange Flex   `json:"dynamic_range"`
	Contrast     Flex   `json:"contrast"`
}

// CueType distinguishes point cues from ranged cues.
type CueType string

const (
	CuePoint CueType = "point"
	CueRange CueType = "range"
)

// Cue is a timestamped or time-ranged marker of musical structure.
type Cue struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Time      string   `json:"time"`
	Color     string   `json:"color,omitempty"`
	Type      CueType  `json:"type,omitempty"`
	StartTime *float64 `json:"startTime,omitempty"`
	EndTime   *float64 `json:"endTime,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// IsRange reports whether the cue spans a time range.
func (c Cue) IsRange() bool {
	return c.Type == CueRange && c.StartTime != nil && c.EndTime != nil
}

// TrackRecord is one analyzed track as returned by the backend's complete event.
//
// Raw keeps the payload exactly as received so unknown fields survive persistence.
type TrackRecord struct {
	BPM          float64              `json:"bpm"`
	Key          string               `json:"key"`
	Texture      string               `json:"texture,omitempty"`
	Color        string               `json:"color,omitempty"`
	Genre        string               `json:"genre,omitempty"`
	Loudness     float64              `json:"loudness"`
	Danceability float64              `json:"danceability"`
	EnergyLevel  string               `json:"energy_level,omitempty"`
	Descriptors  Descriptors          `json:"descriptors"`
	MixPoints    MixPoints            `json:"mix_points"`
	Cues         []Cue                `json:"cues"`
	Waveform     []float64            `json:"waveform"`
	Stems        map[string][]float64 `json:"stems,omitempty"`
	StemFiles    map[string]string    `json:"stem_files,omitempty"`
	MidiFiles    map[string]string    `json:"midi_files,omitempty"`
	Meta         Meta                 `json:"meta"`
	Raw          json.RawMessage      `json:"-"`
}

// ParseTrackRecord decodes a track payload and validates its identity.
func ParseTrackRecord(data []byte) (*TrackRecord, error) {
	var t TrackRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Raw = append(json.RawMessage(nil), data...)
	return &t, nil
}

// Validate checks the fields required to hold a record in a collection.
func (t *TrackRecord) Validate() error {
	if t.Meta.Filename == "" {
		return fmt.Errorf("track record missing meta.filename")
	}
	return nil
}

// Filename returns the identity key of the record.
func (t *TrackRecord) Filename() string { return t.Meta.Filename }

// DisplayTitle returns the tagged title, falling back to the filename.
func (t *TrackRecord) DisplayTitle() string {
	if t.Meta.Title != "" {
		return t.Meta.Title
	}
	return t.Meta.Filename
}

// StemFile returns the asset filename for a stem. Main falls back to the track filename.
// Empty references mean the stem is absent for this track/model.
func (t *TrackRecord) StemFile(id StemID) string {
	if f := t.StemFiles[string(id)]; f != "" {
		return f
	}
	if id == StemMain {
		return t.Meta.Filename
	}
	return ""
}

// Encode returns the record as JSON, preferring the raw payload when present.
func (t *TrackRecord) Encode() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	return json.Marshal(t)
}
