package midiconvert

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New()
	tr := m.AddTrack("piano")
	tr.Channel = 0
	tr.Instrument = 4
	tr.Notes = []Note{
		{Pitch: 60, Time: 0.5, Duration: 1, Velocity: 100.0 / 127, Channel: 0, Instrument: 4},
		{Pitch: 64, Time: 1.5, Duration: 0.25, Velocity: 80.0 / 127, Channel: 0, Instrument: 4},
	}

	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if back.Header.BPM != 120 || back.Header.PPQ != 480 {
		t.Errorf("header came back as %+v", back.Header)
	}
	if len(back.Tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(back.Tracks))
	}
	got := back.Tracks[0]
	if got.Name != "piano" || got.Channel != 0 || got.Instrument != 4 {
		t.Errorf("track came back as %q (%d, %d)", got.Name, got.Channel, got.Instrument)
	}
	if len(got.Notes) != len(tr.Notes) {
		t.Fatalf("got %d notes, want %d", len(got.Notes), len(tr.Notes))
	}
	// One tick of quantization error is allowed.
	tick := ticksToSeconds(1, &m.Header)
	for i, want := range tr.Notes {
		n := got.Notes[i]
		if n.Pitch != want.Pitch || n.Channel != want.Channel {
			t.Errorf("note %d came back as %+v", i, n)
		}
		if math.Abs(n.Velocity-want.Velocity) > 1.0/127 {
			t.Errorf("note %d velocity %v, want %v", i, n.Velocity, want.Velocity)
		}
		if math.Abs(n.Time-want.Time) > tick || math.Abs(n.Duration-want.Duration) > tick {
			t.Errorf("note %d at (%v, %v), want (%v, %v)", i, n.Time, n.Duration, want.Time, want.Duration)
		}
	}
}

func TestEncodeSynthesizesTitleTrack(t *testing.T) {
	m := New()
	m.Header.Name = "My Song"
	tr := m.AddTrack("melody")
	tr.Notes = []Note{{Pitch: 60, Time: 0, Duration: 0.5, Velocity: 1, Channel: 0}}

	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.Header.Name != "My Song" {
		t.Errorf("header name %q, want My Song", back.Header.Name)
	}
	if len(back.Tracks) != 1 || back.Tracks[0].Name != "melody" {
		t.Fatalf("tracks came back as %+v", back.Tracks)
	}
}

func TestEncodeKeepsReferenceTempo(t *testing.T) {
	m := New()
	m.Header.BPM = 90
	tr := m.AddTrack("melody")
	tr.Notes = []Note{{Pitch: 60, Time: 2, Duration: 1, Velocity: 0.5, Channel: 0}}

	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// The tempo meta stores whole microseconds per beat, so 90 BPM does not
	// come back bit-exact.
	if math.Abs(back.Header.BPM-90) > 1e-3 {
		t.Errorf("tempo came back as %v, want 90", back.Header.BPM)
	}
	tick := ticksToSeconds(1, &m.Header)
	n := back.Tracks[0].Notes[0]
	if math.Abs(n.Time-2) > tick || math.Abs(n.Duration-1) > tick {
		t.Errorf("note at (%v, %v), want (2, 1)", n.Time, n.Duration)
	}
}

func TestEncodeControlChangesAndBends(t *testing.T) {
	m := New()
	tr := m.AddTrack("synth")
	tr.Channel = 0
	tr.Notes = []Note{{Pitch: 60, Time: 0, Duration: 2, Velocity: 1, Channel: 0}}
	tr.controlChange(ControlChange{Controller: 64, Time: 0.5, Value: 1, Channel: 0})
	tr.controlChange(ControlChange{Controller: PitchBend, Time: 1, Value: 1, Channel: 0})

	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := back.Tracks[0]
	if len(got.ControlChanges[64]) != 1 || got.ControlChanges[64][0].Value != 1 {
		t.Errorf("sustain came back as %+v", got.ControlChanges[64])
	}
	bends := got.ControlChanges[PitchBend]
	if len(bends) != 1 {
		t.Fatalf("got %d bends, want 1", len(bends))
	}
	// One semitone up, quantized to the 13-bit upward bend resolution.
	if math.Abs(bends[0].Value-1) > 2.0/8192 {
		t.Errorf("bend value %v, want 1", bends[0].Value)
	}
}

func TestEncodeEmptyMidi(t *testing.T) {
	b, err := Encode(New())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back.Tracks) != 0 {
		t.Errorf("got %d tracks, want 0", len(back.Tracks))
	}
	if back.Header.BPM != 120 || back.Header.PPQ != 480 {
		t.Errorf("header came back as %+v", back.Header)
	}
}

func TestEncodeSilentNote(t *testing.T) {
	m := New()
	tr := m.AddTrack("melody")
	tr.Channel = 0
	tr.Notes = []Note{{Pitch: 60, Time: 0, Duration: 0.5, Velocity: 0, Channel: 0}}

	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back.Tracks) != 1 || len(back.Tracks[0].Notes) != 1 {
		t.Fatalf("tracks came back as %+v", back.Tracks)
	}
	// Wire velocity is floored at 1 so the note-on is not read as a
	// note-off.
	if got := back.Tracks[0].Notes[0].Velocity; got != 1.0/127 {
		t.Errorf("velocity came back as %v, want 1/127", got)
	}
}

func TestEncodeRejectsBadHeader(t *testing.T) {
	m := New()
	m.Header.PPQ = 0
	if _, err := Encode(m); err == nil {
		t.Error("Encode accepted zero PPQ")
	}
	m = New()
	m.Header.BPM = -1
	if _, err := Encode(m); err == nil {
		t.Error("Encode accepted negative tempo")
	}
}
