package midiconvert

import (
	"slices"
	"sort"
)

// tempoBreakpoint marks a tempo change at a nominal (reference-tempo
// timeline) position.
type tempoBreakpoint struct {
	Time float64
	BPM  float64
}

// tempoCurve is the time-ordered list of tempo breakpoints discovered while
// demuxing. It is pipeline state only and is discarded after decoding.
type tempoCurve []tempoBreakpoint

// insert places b after the rightmost breakpoint whose time is <= b.Time, so
// the curve stays non-decreasing even though breakpoints from different raw
// tracks arrive out of order. Equal-time breakpoints are kept; the later one
// wins once the warp consumes the list front to back.
func (c *tempoCurve) insert(b tempoBreakpoint) {
	i := sort.Search(len(*c), func(i int) bool {
		return (*c)[i].Time > b.Time
	})
	*c = slices.Insert(*c, i, b)
}

// warp rewrites nominal times into real times using the curve. Elements are
// processed in nominal-time order; time points at the element's timestamp and
// duration, if non-nil, at a span to scale by the segment's tempo ratio. The
// input is returned untouched when the curve is empty: nominal time already
// equals real time then.
//
// A note spanning a tempo change keeps the speed of the segment it starts in;
// its duration is not integrated across the boundary.
func warp[E any](c tempoCurve, refBPM float64, elems []E, time func(*E) *float64, duration func(*E) *float64) []E {
	out := slices.Clone(elems)
	if len(c) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b E) int {
		switch at, bt := *time(&a), *time(&b); {
		case at < bt:
			return -1
		case at > bt:
			return 1
		}
		return 0
	})
	var oldTime, newTime float64
	index := 0
	speed := 1.0
	for i := range out {
		t := *time(&out[i])
		if t < c[0].Time {
			// Before the first tempo change the reference tempo holds.
			continue
		}
		oldTime = c[index].Time
		speed = refBPM / c[index].BPM
		for index+1 < len(c) && t >= c[index+1].Time {
			newTime += (c[index+1].Time - oldTime) * speed
			index++
			oldTime = c[index].Time
			speed = refBPM / c[index].BPM
		}
		*time(&out[i]) = (t-oldTime)*speed + newTime
		if duration != nil {
			*duration(&out[i]) *= speed
		}
	}
	return out
}

// applyTempoChanges re-times every track of m from the nominal timeline to
// real seconds. No-op when the curve is empty.
func applyTempoChanges(m *Midi, c tempoCurve) {
	if len(c) == 0 {
		return
	}
	for _, t := range m.Tracks {
		t.Notes = warp(c, m.Header.BPM, t.Notes,
			func(n *Note) *float64 { return &n.Time },
			func(n *Note) *float64 { return &n.Duration })
		for id, ccs := range t.ControlChanges {
			t.ControlChanges[id] = warp(c, m.Header.BPM, ccs,
				func(cc *ControlChange) *float64 { return &cc.Time }, nil)
		}
	}
}

// ticksToSeconds maps a tick delta to elapsed seconds assuming the reference
// tempo holds throughout. The warp corrects this later; the true curve is
// only known after every track has been scanned.
func ticksToSeconds(ticks int64, h *Header) float64 {
	return float64(ticks) / float64(h.PPQ) * (60 / h.BPM)
}

// secondsToTicks is the inverse mapping at the current reference tempo.
func secondsToTicks(seconds float64, h *Header) int64 {
	return int64(seconds*h.BPM/60*float64(h.PPQ) + 0.5)
}
