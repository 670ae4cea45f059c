package midiconvert

import (
	"bytes"
	"fmt"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Encode serializes the semantic model back into SMF bytes. All events are
// re-timed at the current reference tempo: the original tempo curve was baked
// into the timestamps during decoding and is not reconstructed, so files that
// had several tempo changes come out with flattened timing.
func Encode(m *Midi) ([]byte, error) {
	out, err := ToSMF(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serializing MIDI stream: %w", err)
	}
	return buf.Bytes(), nil
}

// ToSMF converts the semantic model into a tokenized SMF for the byte codec.
func ToSMF(m *Midi) (*smf.SMF, error) {
	if m.Header.PPQ == 0 {
		return nil, fmt.Errorf("invalid header: pulses per quarter must be positive")
	}
	if m.Header.BPM <= 0 {
		return nil, fmt.Errorf("invalid header: tempo %v must be positive", m.Header.BPM)
	}
	out := smf.NewSMF1()
	out.TimeFormat = smf.MetricTicks(m.Header.PPQ)

	tempoDone := false
	lead := func() smf.Track {
		var tr smf.Track
		if !tempoDone {
			tr = append(tr, smf.Event{Delta: 0, Message: smf.MetaTempo(m.Header.BPM)})
			tempoDone = true
		}
		return tr
	}

	tracks := m.sortedTracks()
	if m.Header.Name != "" && !hasEmptyNamedTrack(tracks, m.Header.Name) {
		tr := lead()
		tr = append(tr, smf.Event{Delta: 0, Message: smf.MetaTrackSequenceName(m.Header.Name)})
		tr.Close(0)
		if err := out.Add(tr); err != nil {
			return nil, fmt.Errorf("adding title track: %w", err)
		}
	}
	for _, t := range tracks {
		tr := lead()
		if t.Name != "" {
			tr = append(tr, smf.Event{Delta: 0, Message: smf.MetaTrackSequenceName(t.Name)})
		}
		if t.Instrument != Unset {
			tr = append(tr, smf.Event{Delta: 0, Message: smf.Message(midi.ProgramChange(trackChannel(t, t.Channel), uint8(t.Instrument&0x7f)))})
		}
		events := trackEvents(t, &m.Header)
		var at int64
		for _, ev := range events {
			tr = append(tr, smf.Event{Delta: uint32(ev.tick - at), Message: ev.msg})
			at = ev.tick
		}
		tr.Close(0)
		if err := out.Add(tr); err != nil {
			return nil, fmt.Errorf("adding track %d: %w", t.ID, err)
		}
	}
	if !tempoDone {
		// A model without tracks still encodes to a valid file: a single
		// track carrying only the tempo meta.
		tr := lead()
		tr.Close(0)
		if err := out.Add(tr); err != nil {
			return nil, fmt.Errorf("adding tempo track: %w", err)
		}
	}
	return out, nil
}

type tickEvent struct {
	tick int64
	msg  smf.Message
}

// trackEvents converts a track's notes and control changes from real seconds
// back into absolute ticks at the header tempo and returns them time-sorted,
// note ends first within a tick so back-to-back notes re-trigger cleanly.
func trackEvents(t *Track, h *Header) []tickEvent {
	var events []tickEvent
	for _, n := range t.Notes {
		ch := trackChannel(t, n.Channel)
		vel := clamp7(n.Velocity * 127)
		if vel == 0 {
			// Velocity 0 on the wire means note-off.
			vel = 1
		}
		events = append(events,
			tickEvent{secondsToTicks(n.Time, h), smf.Message(midi.NoteOn(ch, n.Pitch, vel))},
			tickEvent{secondsToTicks(n.End(), h), smf.Message(midi.NoteOff(ch, n.Pitch))},
		)
	}
	for id, ccs := range t.ControlChanges {
		for _, cc := range ccs {
			ch := trackChannel(t, cc.Channel)
			var msg midi.Message
			if id == PitchBend {
				msg = midi.Pitchbend(ch, bendValue(cc.Value))
			} else {
				msg = midi.ControlChange(ch, uint8(id&0x7f), clamp7(cc.Value*127))
			}
			events = append(events, tickEvent{secondsToTicks(cc.Time, h), smf.Message(msg)})
		}
	}
	slices.SortStableFunc(events, func(a, b tickEvent) int {
		if a.tick != b.tick {
			if a.tick < b.tick {
				return -1
			}
			return 1
		}
		aOff := a.msg.GetNoteEnd(nil, nil)
		bOff := b.msg.GetNoteEnd(nil, nil)
		switch {
		case aOff && !bOff:
			return -1
		case bOff && !aOff:
			return 1
		}
		return 0
	})
	return events
}

// trackChannel resolves the wire channel for an element: the element's own,
// else the track's, else 0.
func trackChannel(t *Track, elemChannel int) uint8 {
	return uint8(resolve(0, elemChannel, t.Channel) & 0x0f)
}

// bendValue maps a semitone-normalized pitch-bend value back to the wire
// range, assuming the default two-semitone bend range.
func bendValue(v float64) int16 {
	raw := v / defaultBendRange * 8192
	if raw > 8191 {
		raw = 8191
	}
	if raw < -8192 {
		raw = -8192
	}
	return int16(raw)
}

func clamp7(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 127 {
		return 127
	}
	return uint8(v + 0.5)
}

// hasEmptyNamedTrack reports whether a track already represents the file name
// as an empty title-only track.
func hasEmptyNamedTrack(tracks []*Track, name string) bool {
	for _, t := range tracks {
		if t.Name == name && len(t.Notes) == 0 && len(t.ControlChanges) == 0 {
			return true
		}
	}
	return false
}
