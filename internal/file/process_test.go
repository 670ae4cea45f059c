package file

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"testing/fstest"

	midiconvert "github.com/hillct/MidiConvert"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func testMIDIBytes(t *testing.T) []byte {
	t.Helper()
	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(480)
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("melody"))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 64, 100))
	tr.Add(480, midi.NoteOff(0, 64))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatalf("adding track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("writing SMF: %v", err)
	}
	return buf.Bytes()
}

func TestLoadFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"song.mid": &fstest.MapFile{Data: testMIDIBytes(t)},
	}
	m, err := Load(context.Background(), fsys, &Options{InputFile: "song.mid"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Tracks) != 1 || len(m.Tracks[0].Notes) != 2 {
		t.Errorf("loaded %+v", m.Tracks)
	}
}

func TestLoadRejectsMissingInput(t *testing.T) {
	if _, err := Load(context.Background(), fstest.MapFS{}, &Options{}); err == nil {
		t.Error("Load accepted empty options")
	}
}

func TestApplySliceAndBPM(t *testing.T) {
	fsys := fstest.MapFS{
		"song.mid": &fstest.MapFile{Data: testMIDIBytes(t)},
	}
	m, err := Load(context.Background(), fsys, &Options{InputFile: "song.mid"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	begin, end, bpm := 0.4, 2.0, 60.0
	m, err = Apply(m, &Options{SliceBegin: &begin, SliceEnd: &end, BPM: &bpm})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// The slice drops the first note (starts at 0); the rescale to 60 BPM
	// then doubles the second note's timings (0.5 -> 1.0).
	notes := m.Tracks[0].Notes
	if len(notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(notes))
	}
	if notes[0].Time != 1.0 {
		t.Errorf("note at %v, want 1.0", notes[0].Time)
	}
}

func TestApplyUnknownTrack(t *testing.T) {
	m := midiconvert.New()
	m.AddTrack("melody")
	if _, err := Apply(m, &Options{Track: "bass"}); err == nil {
		t.Error("Apply accepted an unknown track name")
	}
}

func TestRunDumpsRecordYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"song.mid": &fstest.MapFile{Data: testMIDIBytes(t)},
	}
	var dump bytes.Buffer
	err := Run(context.Background(), fsys, &Options{InputFile: "song.mid"}, &dump)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := dump.String()
	if !strings.Contains(out, "melody") || !strings.Contains(out, "bpm: 120") {
		t.Errorf("dump missing expected fields:\n%s", out)
	}
}

func TestReadOptions(t *testing.T) {
	fsys := fstest.MapFS{
		"options.yml": &fstest.MapFile{Data: []byte(
			"inputfile: song.mid\noutputfile: out.mid\nbpm: 90\ntrack: melody\n",
		)},
	}
	options, err := ReadOptions(fsys, "options.yml")
	if err != nil {
		t.Fatalf("ReadOptions: %v", err)
	}
	if options.InputFile != "song.mid" || options.OutputFile != "out.mid" {
		t.Errorf("files came back as %q, %q", options.InputFile, options.OutputFile)
	}
	if options.BPM == nil || *options.BPM != 90 {
		t.Errorf("bpm came back as %v", options.BPM)
	}
	if options.Track != "melody" {
		t.Errorf("track came back as %q", options.Track)
	}
}

func TestMergePrefersOverride(t *testing.T) {
	base := &Options{InputFile: "a.mid", OutputFile: "a-out.mid"}
	bpm := 90.0
	override := &Options{InputFile: "b.mid", BPM: &bpm}
	merged := Merge(base, override)
	if merged.InputFile != "b.mid" {
		t.Errorf("input %q, want b.mid", merged.InputFile)
	}
	if merged.OutputFile != "a-out.mid" {
		t.Errorf("output %q, want a-out.mid", merged.OutputFile)
	}
	if merged.BPM == nil || *merged.BPM != 90 {
		t.Errorf("bpm %v, want 90", merged.BPM)
	}
}
