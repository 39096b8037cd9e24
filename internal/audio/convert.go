package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// SilenceThreshold is the largest absolute sample value still treated as
// silence.
const SilenceThreshold = 16

// ToMono averages interleaved channels into one. Mono input is returned
// as-is; a trailing partial frame is dropped.
func ToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// FromFloat converts samples in [-1, 1] to 16-bit PCM, clipping anything
// outside that range.
func FromFloat(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		v = math.Round(v * math.MaxInt16)
		out[i] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	return out
}

// IsSilent reports whether no sample exceeds threshold in magnitude.
func IsSilent(samples []int16, threshold int) bool {
	for _, s := range samples {
		v := int(s)
		if v > threshold || -v > threshold {
			return false
		}
	}
	return true
}

// Resample converts mono samples from one rate to another.
func Resample(samples []int16, from, to int) ([]int16, error) {
	conv, err := NewConverter(from, to, 1)
	if err != nil {
		return nil, err
	}
	return conv.Convert(samples)
}

// Converter turns a stream of interleaved blocks into mono samples at a
// fixed output rate. Rates that divide evenly are decimated by block
// averaging; other ratios go through a windowed-sinc resampler. State is
// carried across calls, so blocks of one stream must go through the same
// Converter. It is not safe for concurrent use.
type Converter struct {
	from, to int
	channels int

	factor    int
	carry     []int16
	resampler resampling.Resampler
}

func NewConverter(from, to, channels int) (*Converter, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	c := &Converter{from: from, to: to, channels: channels}
	switch {
	case from == to:
		c.factor = 1
	case from > to && from%to == 0:
		c.factor = from / to
	default:
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(from),
			OutputRate: float64(to),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		c.resampler = r
	}
	return c, nil
}

// Convert processes one interleaved block and returns whatever output is
// ready. Output may lag input by a few samples.
func (c *Converter) Convert(block []int16) ([]int16, error) {
	mono := ToMono(block, c.channels)

	if c.resampler != nil {
		in := make([]float64, len(mono))
		for i, s := range mono {
			in[i] = float64(s) / 32768.0
		}
		out, err := c.resampler.Process(in)
		if err != nil {
			return nil, fmt.Errorf("resample error: %w", err)
		}
		samples := make([]int16, len(out))
		for i, v := range out {
			samples[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v*32768.0))))
		}
		return samples, nil
	}

	if c.factor == 1 {
		return append([]int16(nil), mono...), nil
	}

	pending := append(c.carry, mono...)
	blocks := len(pending) / c.factor
	out := make([]int16, blocks)
	for i := range out {
		sum := 0
		for _, s := range pending[i*c.factor : (i+1)*c.factor] {
			sum += int(s)
		}
		out[i] = int16(sum / c.factor)
	}
	c.carry = append(c.carry[:0], pending[blocks*c.factor:]...)
	return out, nil
}
