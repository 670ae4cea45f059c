package midiconvert

import (
	"fmt"
	"strconv"
)

// Record and its children are a lossless structural mirror of the semantic
// model for persistence and interop. They carry no behavior; marshaling them
// to JSON or YAML is the caller's business.
type Record struct {
	Header HeaderRecord  `json:"header" yaml:"header"`
	Tracks []TrackRecord `json:"tracks" yaml:"tracks"`
}

type HeaderRecord struct {
	Name          string  `json:"name,omitempty" yaml:"name,omitempty"`
	PPQ           int     `json:"ppq" yaml:"ppq"`
	BPM           float64 `json:"bpm" yaml:"bpm"`
	TimeSignature [2]int  `json:"timeSignature" yaml:"timeSignature"`
	FormatType    int     `json:"formatType" yaml:"formatType"`
}

type TrackRecord struct {
	ID             int                              `json:"id" yaml:"id"`
	Name           string                           `json:"name,omitempty" yaml:"name,omitempty"`
	ChannelNumber  int                              `json:"channelNumber" yaml:"channelNumber"`
	InstrumentNum  int                              `json:"instrumentNumber" yaml:"instrumentNumber"`
	Notes          []NoteRecord                     `json:"notes" yaml:"notes"`
	ControlChanges map[string][]ControlChangeRecord `json:"controlChanges,omitempty" yaml:"controlChanges,omitempty"`
}

type NoteRecord struct {
	Pitch      int     `json:"pitch" yaml:"pitch"`
	Time       float64 `json:"time" yaml:"time"`
	Duration   float64 `json:"duration" yaml:"duration"`
	Velocity   float64 `json:"velocity" yaml:"velocity"`
	Channel    int     `json:"channel" yaml:"channel"`
	Instrument int     `json:"instrument" yaml:"instrument"`
}

type ControlChangeRecord struct {
	Time       float64 `json:"time" yaml:"time"`
	Value      float64 `json:"value" yaml:"value"`
	Channel    int     `json:"channel" yaml:"channel"`
	Instrument int     `json:"instrument" yaml:"instrument"`
}

// ToRecord transcribes the model into its record mirror.
func ToRecord(m *Midi) *Record {
	r := &Record{
		Header: HeaderRecord{
			Name:          m.Header.Name,
			PPQ:           int(m.Header.PPQ),
			BPM:           m.Header.BPM,
			TimeSignature: m.Header.TimeSignature,
			FormatType:    int(m.Header.FormatType),
		},
	}
	for _, t := range m.Tracks {
		tr := TrackRecord{
			ID:            t.ID,
			Name:          t.Name,
			ChannelNumber: t.Channel,
			InstrumentNum: t.Instrument,
			Notes:         make([]NoteRecord, 0, len(t.Notes)),
		}
		for _, n := range t.Notes {
			tr.Notes = append(tr.Notes, NoteRecord{
				Pitch:      int(n.Pitch),
				Time:       n.Time,
				Duration:   n.Duration,
				Velocity:   n.Velocity,
				Channel:    n.Channel,
				Instrument: n.Instrument,
			})
		}
		if len(t.ControlChanges) > 0 {
			tr.ControlChanges = map[string][]ControlChangeRecord{}
			for id, ccs := range t.ControlChanges {
				rs := make([]ControlChangeRecord, 0, len(ccs))
				for _, cc := range ccs {
					rs = append(rs, ControlChangeRecord{
						Time:       cc.Time,
						Value:      cc.Value,
						Channel:    cc.Channel,
						Instrument: cc.Instrument,
					})
				}
				tr.ControlChanges[id.String()] = rs
			}
		}
		r.Tracks = append(r.Tracks, tr)
	}
	return r
}

// FromRecord transcribes a record mirror back into the model.
func FromRecord(r *Record) (*Midi, error) {
	m := &Midi{
		Header: Header{
			Name:          r.Header.Name,
			PPQ:           uint16(r.Header.PPQ),
			BPM:           r.Header.BPM,
			TimeSignature: r.Header.TimeSignature,
			FormatType:    uint16(r.Header.FormatType),
		},
	}
	for _, tr := range r.Tracks {
		t := &Track{
			ID:         tr.ID,
			Name:       tr.Name,
			Channel:    tr.ChannelNumber,
			Instrument: tr.InstrumentNum,
		}
		for _, n := range tr.Notes {
			if n.Pitch < 0 || n.Pitch > 127 {
				return nil, fmt.Errorf("track %d: pitch %d out of range", tr.ID, n.Pitch)
			}
			t.Notes = append(t.Notes, Note{
				Pitch:      uint8(n.Pitch),
				Time:       n.Time,
				Duration:   n.Duration,
				Velocity:   n.Velocity,
				Channel:    n.Channel,
				Instrument: n.Instrument,
			})
		}
		for key, rs := range tr.ControlChanges {
			id, err := parseControllerID(key)
			if err != nil {
				return nil, fmt.Errorf("track %d: %v", tr.ID, err)
			}
			for _, cc := range rs {
				t.controlChange(ControlChange{
					Controller: id,
					Time:       cc.Time,
					Value:      cc.Value,
					Channel:    cc.Channel,
					Instrument: cc.Instrument,
				})
			}
		}
		m.Tracks = append(m.Tracks, t)
	}
	return m, nil
}

// parseControllerID is the inverse of ControllerID.String.
func parseControllerID(s string) (ControllerID, error) {
	if s == PitchBend.String() {
		return PitchBend, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 127 {
		return 0, fmt.Errorf("invalid controller id %q", s)
	}
	return ControllerID(n), nil
}
