package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	midiconvert "github.com/hillct/MidiConvert"
	"github.com/hillct/MidiConvert/internal/transport"
)

// Load acquires the raw bytes named by options, from the file system or over
// HTTP, and decodes them into the semantic model.
func Load(ctx context.Context, fsys fs.FS, options *Options) (*midiconvert.Midi, error) {
	var raw []byte
	var err error
	switch {
	case options.InputURL != "":
		raw, err = transport.Fetch(ctx, options.InputURL)
	case options.InputFile != "":
		raw, err = fs.ReadFile(fsys, options.InputFile)
	default:
		return nil, fmt.Errorf("no input file or URL given")
	}
	if err != nil {
		return nil, fmt.Errorf("could not load input: %w", err)
	}
	m, err := midiconvert.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse input: %w", err)
	}
	return m, nil
}

// Apply applies the optional track selection, slice window and tempo rescale
// to the model, in that order.
func Apply(m *midiconvert.Midi, options *Options) (*midiconvert.Midi, error) {
	if options.Track != "" {
		t := m.FindTrack(options.Track)
		if t == nil {
			return nil, fmt.Errorf("no track named %q", options.Track)
		}
		m.Tracks = []*midiconvert.Track{t}
	}
	if options.SliceBegin != nil || options.SliceEnd != nil {
		begin := 0.0
		if options.SliceBegin != nil {
			begin = *options.SliceBegin
		}
		end := m.Duration()
		if options.SliceEnd != nil {
			end = *options.SliceEnd
		}
		m = m.Slice(begin, end)
	}
	if options.BPM != nil {
		m.SetBPM(*options.BPM)
	}
	return m, nil
}

// Run performs one conversion: load, apply options, then write the encoded
// bytes to options.OutputFile and/or dump the record mirror as YAML to dump.
func Run(ctx context.Context, fsys fs.FS, options *Options, dump io.Writer) error {
	m, err := Load(ctx, fsys, options)
	if err != nil {
		return err
	}
	m, err = Apply(m, options)
	if err != nil {
		return err
	}
	if options.OutputFile != "" {
		b, err := midiconvert.Encode(m)
		if err != nil {
			return fmt.Errorf("could not encode: %v", err)
		}
		if err := os.WriteFile(options.OutputFile, b, 0666); err != nil {
			return fmt.Errorf("could not write %v: %v", options.OutputFile, err)
		}
	}
	if dump != nil {
		enc := yaml.NewEncoder(dump)
		enc.SetIndent(2) // Match yq.
		if err := enc.Encode(midiconvert.ToRecord(m)); err != nil {
			return fmt.Errorf("could not dump: %v", err)
		}
		return enc.Close()
	}
	return nil
}
