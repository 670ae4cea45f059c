// Package midiconvert converts between Standard MIDI File bytes and a
// semantic performance model whose timestamps are real elapsed seconds
// rather than file-native clock ticks.
package midiconvert

import (
	"slices"
	"strconv"
)

// Unset marks a channel or instrument number not yet assigned by the stream.
const Unset = -1

// ControllerID identifies a control-change sequence within a track. Values
// 0..127 are plain MIDI controller numbers; PitchBend is a synthetic id for
// the pitch-bend sequence.
type ControllerID int

// PitchBend is the ControllerID of normalized pitch-bend events.
const PitchBend ControllerID = 128

func (c ControllerID) String() string {
	if c == PitchBend {
		return "pitchBend"
	}
	return strconv.Itoa(int(c))
}

// Header holds the per-file parameters set once at decode start. BPM is the
// reference tempo; changing it via Midi.SetBPM rescales all track timings.
type Header struct {
	Name          string
	PPQ           uint16
	BPM           float64
	TimeSignature [2]int
	FormatType    uint16
}

// Note is a paired note-on/note-off with real-seconds timing. Duration stays
// zero until the matching note-off is seen.
type Note struct {
	Pitch      uint8
	Time       float64
	Duration   float64
	Velocity   float64 // 0..1
	Channel    int     // 0..15, or Unset
	Instrument int     // program number, or Unset
}

// End returns the note's end time.
func (n Note) End() float64 {
	return n.Time + n.Duration
}

// ControlChange is a normalized controller or pitch-bend event. Value is 0..1
// for plain controllers and a signed semitone ratio for pitch bend.
type ControlChange struct {
	Controller ControllerID
	Time       float64
	Value      float64
	Channel    int
	Instrument int
}

// Track is one (channel, instrument) voice after splitting.
type Track struct {
	ID             int
	Name           string
	Channel        int // Unset on tracks that never saw a channel event
	Instrument     int
	Notes          []Note
	ControlChanges map[ControllerID][]ControlChange
}

// InstrumentName returns the General MIDI name of the track's program, or ""
// if the instrument is unset.
func (t *Track) InstrumentName() string {
	return instrumentName(t.Instrument)
}

// EndTime returns the end of the track's last note, 0 if it has none.
func (t *Track) EndTime() float64 {
	var end float64
	for _, n := range t.Notes {
		if n.End() > end {
			end = n.End()
		}
	}
	return end
}

// controlChange appends a change to the track's sequence for its controller,
// creating the map and the sequence on first use.
func (t *Track) controlChange(cc ControlChange) {
	if t.ControlChanges == nil {
		t.ControlChanges = map[ControllerID][]ControlChange{}
	}
	t.ControlChanges[cc.Controller] = append(t.ControlChanges[cc.Controller], cc)
}

// Midi is the root of the semantic model.
type Midi struct {
	Header Header
	Tracks []*Track
}

// New returns an empty Midi with the customary defaults: 480 PPQ, 120 BPM,
// 4/4, format 1.
func New() *Midi {
	return &Midi{
		Header: Header{
			PPQ:           480,
			BPM:           120,
			TimeSignature: [2]int{4, 4},
			FormatType:    1,
		},
	}
}

// StartTime returns the earliest note start across all tracks, 0 if there are
// no notes.
func (m *Midi) StartTime() float64 {
	start := -1.0
	for _, t := range m.Tracks {
		for _, n := range t.Notes {
			if start < 0 || n.Time < start {
				start = n.Time
			}
		}
	}
	if start < 0 {
		return 0
	}
	return start
}

// Duration returns the latest track end across all tracks, 0 if there are no
// notes.
func (m *Midi) Duration() float64 {
	var end float64
	for _, t := range m.Tracks {
		if e := t.EndTime(); e > end {
			end = e
		}
	}
	return end
}

// AddTrack appends a new empty track with the next dense id.
func (m *Midi) AddTrack(name string) *Track {
	t := &Track{
		ID:         len(m.Tracks),
		Name:       name,
		Channel:    Unset,
		Instrument: Unset,
	}
	m.Tracks = append(m.Tracks, t)
	return t
}

// Track returns the track at the given index, nil if out of range.
func (m *Midi) Track(i int) *Track {
	if i < 0 || i >= len(m.Tracks) {
		return nil
	}
	return m.Tracks[i]
}

// FindTrack returns the first track with the given name, nil if there is
// none.
func (m *Midi) FindTrack(name string) *Track {
	for _, t := range m.Tracks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// SetBPM changes the reference tempo and stretches every note and
// control-change time and every note duration by oldBPM/newBPM. The warp
// already baked into the timings is unaffected.
func (m *Midi) SetBPM(bpm float64) {
	if bpm <= 0 || bpm == m.Header.BPM {
		if bpm > 0 {
			m.Header.BPM = bpm
		}
		return
	}
	factor := m.Header.BPM / bpm
	for _, t := range m.Tracks {
		for i := range t.Notes {
			t.Notes[i].Time *= factor
			t.Notes[i].Duration *= factor
		}
		for id, ccs := range t.ControlChanges {
			for i := range ccs {
				ccs[i].Time *= factor
			}
			t.ControlChanges[id] = ccs
		}
	}
	m.Header.BPM = bpm
}

// Slice returns a new Midi keeping only elements whose start time lies in
// [from, to). Note durations are clipped at to; times are not shifted. Track
// ids, names and channel assignments are preserved.
func (m *Midi) Slice(from, to float64) *Midi {
	out := &Midi{Header: m.Header}
	for _, t := range m.Tracks {
		nt := &Track{
			ID:         t.ID,
			Name:       t.Name,
			Channel:    t.Channel,
			Instrument: t.Instrument,
		}
		for _, n := range t.Notes {
			if n.Time < from || n.Time >= to {
				continue
			}
			if n.End() > to {
				n.Duration = to - n.Time
			}
			nt.Notes = append(nt.Notes, n)
		}
		for _, ccs := range t.ControlChanges {
			for _, cc := range ccs {
				if cc.Time < from || cc.Time >= to {
					continue
				}
				nt.controlChange(cc)
			}
		}
		out.Tracks = append(out.Tracks, nt)
	}
	return out
}

// sortedTracks returns the tracks in id order without reordering m itself.
func (m *Midi) sortedTracks() []*Track {
	tracks := slices.Clone(m.Tracks)
	slices.SortStableFunc(tracks, func(a, b *Track) int {
		return a.ID - b.ID
	})
	return tracks
}
