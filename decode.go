package midiconvert

import (
	"bytes"
	"fmt"
	"slices"

	"gitlab.com/gomidi/midi/v2/smf"
)

// defaultBendRange is the pitch-bend range in semitones until an RPN
// bend-range message overrides it.
const defaultBendRange = 2.0

// Decode parses raw SMF bytes into the semantic model. The error is the byte
// codec's own when the stream cannot be tokenized; no partial Midi is
// returned.
func Decode(b []byte) (*Midi, error) {
	mid, err := smf.ReadFrom(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("malformed MIDI stream: %w", err)
	}
	return FromSMF(mid)
}

// FromSMF converts an already tokenized SMF into the semantic model.
//
// The conversion runs in two phases: each raw track is first demuxed onto a
// nominal timeline that assumes the reference tempo holds throughout, and
// split into one track per (channel, instrument) voice; only then, once the
// full tempo curve has been collected from all tracks, are the nominal
// timestamps warped into real seconds.
func FromSMF(mid *smf.SMF) (*Midi, error) {
	ticks, ok := mid.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported time format %v, need metric ticks", mid.TimeFormat)
	}
	m := New()
	m.Header.PPQ = uint16(ticks)
	m.Header.FormatType = mid.Format()
	scanHeader(mid, &m.Header)

	var curve tempoCurve
	for _, tr := range mid.Tracks {
		raw := demuxTrack(tr, &m.Header, &curve)
		if m.Header.Name == "" && raw.name != "" && len(raw.notes) == 0 && len(raw.ccs) == 0 {
			// An otherwise empty named track is taken to be a
			// title-only meta track.
			m.Header.Name = raw.name
		}
		m.Tracks = append(m.Tracks, splitRawTrack(raw)...)
	}
	for i, t := range m.Tracks {
		t.ID = i
	}
	applyTempoChanges(m, curve)
	return m, nil
}

// scanHeader initializes the reference tempo and time signature from the
// first set-tempo and time-signature events found anywhere in the file. The
// defaults from New stand when the file carries neither.
func scanHeader(mid *smf.SMF, h *Header) {
	var gotTempo, gotMeter bool
	for _, tr := range mid.Tracks {
		for _, ev := range tr {
			var bpm float64
			var num, denom uint8
			if !gotTempo && ev.Message.GetMetaTempo(&bpm) {
				h.BPM = bpm
				gotTempo = true
			}
			if !gotMeter && ev.Message.GetMetaMeter(&num, &denom) {
				h.TimeSignature = [2]int{int(num), int(denom)}
				gotMeter = true
			}
			if gotTempo && gotMeter {
				return
			}
		}
	}
}

// rawTrack is one file track after demuxing, before the voice split. Its
// notes and control changes still sit on the nominal timeline and may mix
// several channels and instruments.
type rawTrack struct {
	name       string
	channel    int
	instrument int
	notes      []Note
	ccs        []ControlChange
}

// channelState is the per-channel running state of the demuxer.
type channelState struct {
	instrument int
	bendRange  float64
	// rpnArmed is set while RPN 0 (pitch-bend range) is selected via
	// controller 101 and no controller 100 has masked it since, so that a
	// following data-entry controller 6 applies to the bend range.
	rpnArmed bool
}

type pitchChannel struct {
	pitch   uint8
	channel uint8
}

// demuxTrack scans one raw track, accumulating nominal absolute time from the
// per-event tick deltas, pairing note-on/note-off into durationed notes and
// normalizing controller and pitch-bend values. Tempo events found on the way
// are inserted into curve, which the caller shares across all tracks.
func demuxTrack(tr smf.Track, h *Header, curve *tempoCurve) *rawTrack {
	t := &rawTrack{channel: Unset, instrument: Unset}
	states := map[uint8]*channelState{}
	state := func(ch uint8) *channelState {
		s := states[ch]
		if s == nil {
			s = &channelState{instrument: Unset, bendRange: defaultBendRange}
			states[ch] = s
		}
		return s
	}
	seeChannel := func(ch uint8) {
		if t.channel == Unset {
			t.channel = int(ch)
		}
	}
	// Pending note indices per (pitch, channel), oldest first.
	pending := map[pitchChannel][]int{}

	var abs float64
	for _, ev := range tr {
		abs += ticksToSeconds(int64(ev.Delta), h)
		msg := ev.Message
		var (
			ch, key, vel uint8
			cc, val      uint8
			prog         uint8
			rel          int16
			bend         uint16
			text         string
			bpm          float64
		)
		switch {
		case msg.GetMetaTrackName(&text):
			t.name = cleanName(text)
		case msg.GetNoteStart(&ch, &key, &vel):
			seeChannel(ch)
			k := pitchChannel{key, ch}
			pending[k] = append(pending[k], len(t.notes))
			t.notes = append(t.notes, Note{
				Pitch:      key,
				Time:       abs,
				Velocity:   float64(vel) / 127,
				Channel:    int(ch),
				Instrument: state(ch).instrument,
			})
		case msg.GetNoteEnd(&ch, &key):
			k := pitchChannel{key, ch}
			q := pending[k]
			if len(q) == 0 {
				// A note-off with no pending note-on is ignored.
				break
			}
			pending[k] = q[1:]
			t.notes[q[0]].Duration = abs - t.notes[q[0]].Time
		case msg.GetControlChange(&ch, &cc, &val):
			seeChannel(ch)
			s := state(ch)
			switch cc {
			case 101:
				s.rpnArmed = val == 0
			case 100:
				if val != 0 {
					s.rpnArmed = false
				}
			case 6:
				if s.rpnArmed {
					s.bendRange = float64(val)
				}
			}
			t.ccs = append(t.ccs, ControlChange{
				Controller: ControllerID(cc),
				Time:       abs,
				Value:      float64(val) / 127,
				Channel:    int(ch),
				Instrument: s.instrument,
			})
		case msg.GetProgramChange(&ch, &prog):
			seeChannel(ch)
			state(ch).instrument = int(prog)
			if t.instrument == Unset {
				t.instrument = int(prog)
			}
		case msg.GetPitchBend(&ch, &rel, &bend):
			seeChannel(ch)
			s := state(ch)
			t.ccs = append(t.ccs, ControlChange{
				Controller: PitchBend,
				Time:       abs,
				Value:      s.bendRange * (float64(bend) - 8192) / 8192,
				Channel:    int(ch),
				Instrument: s.instrument,
			})
		case msg.GetMetaInstrument(&text):
			// An instrument-name meta binds the named GM program to
			// the track's channel.
			p := programForName(text)
			if p == Unset {
				break
			}
			if t.channel != Unset {
				state(uint8(t.channel)).instrument = p
			}
			if t.instrument == Unset {
				t.instrument = p
			}
		case msg.GetMetaTempo(&bpm):
			curve.insert(tempoBreakpoint{Time: abs, BPM: bpm})
		}
	}
	return t
}

// resolve returns the first set candidate, def when none is set.
func resolve(def int, candidates ...int) int {
	for _, v := range candidates {
		if v != Unset {
			return v
		}
	}
	return def
}

// splitRawTrack redistributes a raw track's notes and control changes into
// one track per distinct (channel, instrument) voice. Each element's channel
// falls back to the raw track's channel, its instrument to the raw track's
// instrument and finally to program 0. Output tracks come out
// channel-ascending, then instrument-ascending; ids are assigned later,
// densely across the whole file.
func splitRawTrack(raw *rawTrack) []*Track {
	type voice struct {
		channel, instrument int
	}
	groups := map[voice]*Track{}
	group := func(v voice) *Track {
		t := groups[v]
		if t == nil {
			t = &Track{
				Name:       raw.name,
				Channel:    v.channel,
				Instrument: v.instrument,
			}
			groups[v] = t
		}
		return t
	}
	for _, n := range raw.notes {
		v := voice{
			channel:    resolve(Unset, n.Channel, raw.channel),
			instrument: resolve(0, n.Instrument, raw.instrument),
		}
		n.Channel, n.Instrument = v.channel, v.instrument
		group(v).Notes = append(group(v).Notes, n)
	}
	for _, cc := range raw.ccs {
		v := voice{
			channel:    resolve(Unset, cc.Channel, raw.channel),
			instrument: resolve(0, cc.Instrument, raw.instrument),
		}
		cc.Channel, cc.Instrument = v.channel, v.instrument
		group(v).controlChange(cc)
	}
	voices := make([]voice, 0, len(groups))
	for v := range groups {
		voices = append(voices, v)
	}
	slices.SortFunc(voices, func(a, b voice) int {
		if a.channel != b.channel {
			return a.channel - b.channel
		}
		return a.instrument - b.instrument
	})
	out := make([]*Track, 0, len(voices))
	for _, v := range voices {
		out = append(out, groups[v])
	}
	return out
}
