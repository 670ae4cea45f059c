package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/hillct/MidiConvert/internal/file"
	"github.com/hillct/MidiConvert/internal/version"
)

var (
	i           = flag.String("i", "", "input file name or http(s) URL (.mid)")
	o           = flag.String("o", "", "output file name (.mid)")
	optionsFile = flag.String("options", "", "options file name (YAML)")
	slice       = flag.String("slice", "", "time window to keep, of the form begin:end in seconds")
	bpm         = flag.Float64("bpm", 0, "rescale all timings to this tempo")
	track       = flag.String("track", "", "keep only the named track")
	dump        = flag.Bool("dump", false, "dump the decoded model as YAML to stdout")
	showVersion = flag.Bool("version", false, "print the version and exit")
)

func parseSlice(s string) (begin, end *float64, err error) {
	if s == "" {
		return nil, nil, nil
	}
	var b, e float64
	if _, err := fmt.Sscanf(s, "%f:%f", &b, &e); err != nil {
		return nil, nil, fmt.Errorf("slice %q not in format begin:end", s)
	}
	return &b, &e, nil
}

func flagOptions() (*file.Options, error) {
	begin, end, err := parseSlice(*slice)
	if err != nil {
		return nil, err
	}
	options := &file.Options{
		OutputFile: *o,
		SliceBegin: begin,
		SliceEnd:   end,
		Track:      *track,
	}
	if strings.HasPrefix(*i, "http://") || strings.HasPrefix(*i, "https://") {
		options.InputURL = *i
	} else {
		options.InputFile = *i
	}
	if *bpm > 0 {
		options.BPM = bpm
	}
	return options, nil
}

func Main() error {
	if *showVersion {
		fmt.Println(version.Version())
		return nil
	}

	fromFlags, err := flagOptions()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %v", err)
	}
	fsys := os.DirFS(cwd)

	options := fromFlags
	if *optionsFile != "" {
		fromFile, err := file.ReadOptions(fsys, *optionsFile)
		if err != nil {
			return fmt.Errorf("failed to read options: %v", err)
		}
		// Flags win over the options file.
		options = file.Merge(fromFile, fromFlags)
	}

	var dumpTo io.Writer
	if *dump {
		dumpTo = os.Stdout
	}
	return file.Run(context.Background(), fsys, options, dumpTo)
}

func main() {
	flag.Parse()
	err := Main()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
