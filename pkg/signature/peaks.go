package signature

import (
	"iter"
	"math"
)

// Peak picking parameters.
const (
	// RecentFrames is how many past spectra feed the adaptive threshold.
	RecentFrames = 8
	// PeakMargin scales the recent maximum of a bin into its threshold.
	PeakMargin = 0.97
	// MinPeakSpacing is the minimum frame distance between two kept peaks of
	// the same band.
	MinPeakSpacing = 4

	minScanHz = 250
	maxScanHz = 5500
)

// Bins whose centre lies in [minScanHz, maxScanHz) are scanned.
var (
	firstScanBin = int(math.Ceil(minScanHz / binHz))
	lastScanBin  = int(math.Ceil(maxScanHz/binHz)) - 1
)

// thresholdArena keeps a ring of the last RecentFrames spectra, each spread
// across neighbouring bins. One arena is allocated per extraction.
type thresholdArena struct {
	rows   [RecentFrames][NumBins]float32
	next   int
	filled int
}

func (a *thresholdArena) push(s Spectrum) {
	row := &a.rows[a.next]
	for b := range row {
		v := s[b]
		if b > 0 && s[b-1] > v {
			v = s[b-1]
		}
		if b+1 < len(s) && s[b+1] > v {
			v = s[b+1]
		}
		row[b] = v
	}
	a.next = (a.next + 1) % RecentFrames
	if a.filled < RecentFrames {
		a.filled++
	}
}

// threshold returns PeakMargin times the largest recent value of bin b.
// It is zero until the first spectrum is pushed.
func (a *thresholdArena) threshold(b int) float32 {
	var m float32
	for r := 0; r < a.filled; r++ {
		if v := a.rows[r][b]; v > m {
			m = v
		}
	}
	return m * PeakMargin
}

// bandState tracks the last kept peak of one band. A pending peak has not
// been yielded yet because a stronger neighbour may still replace it.
type bandState struct {
	peak    FrequencyPeak
	seen    bool
	pending bool
}

// ExtractPeaks selects spectral peaks from a frame sequence.
//
// A bin is a candidate when it is a strict local maximum of its frame, is
// above zero and exceeds PeakMargin times the recent maximum of the
// neighbourhood-spread spectrum. Within a band, a candidate closer than
// MinPeakSpacing frames to the last kept peak replaces it only if it is
// strictly stronger. Peaks of one band are yielded in frame order.
func ExtractPeaks(frames iter.Seq2[int, Spectrum]) iter.Seq[FrequencyPeak] {
	return func(yield func(FrequencyPeak) bool) {
		arena := new(thresholdArena)
		states := make(map[Band]*bandState, len(bandOrder))
		for _, b := range bandOrder {
			states[b] = &bandState{}
		}

		flush := func(frame int, all bool) bool {
			for _, b := range bandOrder {
				st := states[b]
				if !st.pending {
					continue
				}
				if all || frame-int(st.peak.FrameOffset) >= MinPeakSpacing {
					st.pending = false
					if !yield(st.peak) {
						return false
					}
				}
			}
			return true
		}

		for k, spectrum := range frames {
			if !flush(k, false) {
				return
			}

			for bin := firstScanBin; bin <= lastScanBin; bin++ {
				v := spectrum[bin]
				if v <= 0 || v <= spectrum[bin-1] || v <= spectrum[bin+1] {
					continue
				}
				if v <= arena.threshold(bin) {
					continue
				}
				band, ok := bandForFrequency(float64(bin) * binHz)
				if !ok {
					continue
				}

				candidate := quantizePeak(band, k, bin, spectrum)
				st := states[band]
				if st.seen && candidate.FrameOffset-st.peak.FrameOffset < MinPeakSpacing {
					if st.pending && candidate.Magnitude > st.peak.Magnitude {
						st.peak = candidate
					}
					continue
				}
				if st.pending && !yield(st.peak) {
					return
				}
				*st = bandState{peak: candidate, seen: true, pending: true}
			}

			arena.push(spectrum)
		}

		flush(0, true)
	}
}

// quantizePeak builds the peak record for a local maximum at bin, refining
// the bin position by parabolic interpolation over its neighbours.
func quantizePeak(band Band, frame, bin int, s Spectrum) FrequencyPeak {
	mag := float64(s[bin])
	before := float64(s[bin-1])
	after := float64(s[bin+1])

	// Positive because bin is a strict local maximum, which also bounds the
	// correction to less than half a bin either way.
	curvature := 2*mag - before - after
	corrected := float64(bin)*64 + (after-before)*32/curvature

	return FrequencyPeak{
		Band:         band,
		FrameOffset:  uint32(frame),
		Magnitude:    uint16(math.Min(mag, math.MaxUint16)),
		CorrectedBin: uint16(math.Min(corrected, math.MaxUint16)),
	}
}
