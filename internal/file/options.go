package file

import (
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Options steers one conversion run. Exactly one of InputFile and InputURL
// must be set.
type Options struct {
	// InputFile is a path to a .mid file in the run's file system.
	InputFile string

	// InputURL fetches the raw bytes over HTTP instead.
	InputURL string

	// OutputFile, if set, receives the re-encoded .mid bytes.
	OutputFile string

	// SliceBegin/SliceEnd, if set, cut the model to [SliceBegin, SliceEnd)
	// seconds before output.
	SliceBegin *float64
	SliceEnd   *float64

	// BPM, if set, rescales all timings to the given reference tempo.
	BPM *float64

	// Track, if set, keeps only the named track.
	Track string
}

func ReadOptions(fsys fs.FS, optionsFile string) (*Options, error) {
	f, err := fsys.Open(optionsFile)
	if err != nil {
		return nil, fmt.Errorf("could not open %v: %v", optionsFile, err)
	}
	defer f.Close()
	var options Options
	err = yaml.NewDecoder(f).Decode(&options)
	if err != nil {
		return nil, fmt.Errorf("could not decode %v: %v", optionsFile, err)
	}
	return &options, nil
}

func WriteOptions(optionsFile string, options *Options) (err error) {
	f, err := os.Create(optionsFile)
	if err != nil {
		return fmt.Errorf("could not recreate %v: %v", optionsFile, err)
	}
	defer func() {
		closeErr := f.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2) // Match yq.
	return enc.Encode(options)
}
