package signature

import (
	"fmt"
	"iter"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Analyzer constants. These are pinned to the recognition service's own
// analyzer and are not free tuning knobs.
const (
	SampleRate = 16000
	WindowSize = 2048
	HopSize    = 128
	NumBins    = WindowSize/2 + 1

	// binHz is the width of one FFT bin.
	binHz = float64(SampleRate) / WindowSize
)

// Log magnitude scale: ln(power)*magnitudeScale + magnitudeOffset. The floor
// power of 1/64 maps to roughly zero.
const (
	magnitudeScale  = 1477.3
	magnitudeOffset = 6144
	powerNormalizer = 1 << 17
	powerFloor      = 1e-10
)

// hannWindow drops the zero endpoints of a 2050-point Hann window.
var hannWindow = window.Hann(WindowSize + 2)[1 : WindowSize+1]

// Spectrum is one frame's magnitude spectrum on the log scale, NumBins long.
type Spectrum []float32

// FrameCount returns how many analysis frames a buffer of n samples yields.
func FrameCount(n int) int {
	if n < WindowSize {
		return 0
	}
	return (n-WindowSize)/HopSize + 1
}

// FrameSeconds returns the elapsed time at the start of frame k.
func FrameSeconds(k int) float64 {
	return float64(k) * HopSize / SampleRate
}

// Frames returns the spectra of samples as a lazy sequence of
// (frameIndex, spectrum) pairs. Frame k covers samples
// [k*HopSize, k*HopSize+WindowSize). The sequence can be ranged over once.
func Frames(samples []int16) (iter.Seq2[int, Spectrum], error) {
	if len(samples) < WindowSize {
		return nil, fmt.Errorf("%w: got %d samples, need at least %d", ErrInputTooShort, len(samples), WindowSize)
	}

	count := FrameCount(len(samples))
	consumed := false

	return func(yield func(int, Spectrum) bool) {
		if consumed {
			return
		}
		consumed = true

		frame := make([]float64, WindowSize)
		for k := 0; k < count; k++ {
			start := k * HopSize
			for i, s := range samples[start : start+WindowSize] {
				frame[i] = float64(s) * hannWindow[i]
			}
			if !yield(k, magnitudeSpectrum(fft.FFTReal(frame))) {
				return
			}
		}
	}, nil
}

// magnitudeSpectrum keeps the non-negative frequencies of an FFT output and
// converts them to the log magnitude scale.
func magnitudeSpectrum(spectrum []complex128) Spectrum {
	out := make(Spectrum, NumBins)
	for i := range out {
		re, im := real(spectrum[i]), imag(spectrum[i])
		out[i] = logMagnitude((re*re + im*im) / powerNormalizer)
	}
	return out
}

func logMagnitude(power float64) float32 {
	if power < powerFloor {
		power = powerFloor
	}
	m := math.Log(power)*magnitudeScale + magnitudeOffset
	if m < 0 {
		return 0
	}
	return float32(m)
}
