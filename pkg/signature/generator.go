package signature

import (
	"fmt"
	"math"
)

// MakeSignature builds a signature from mono 16 kHz PCM samples.
func MakeSignature(samples []int16) (*Signature, error) {
	return MakeSignatureWithRate(samples, SampleRate)
}

// MakeSignatureWithRate is MakeSignature with explicit sample rate metadata.
// The analyzer only runs at SampleRate, so any other rate is rejected, even
// one the wire format could carry.
func MakeSignatureWithRate(samples []int16, sampleRateHz int) (*Signature, error) {
	if !SupportedSampleRate(sampleRateHz) {
		return nil, fmt.Errorf("%w: %d Hz", ErrUnsupportedSampleRate, sampleRateHz)
	}
	if sampleRateHz != SampleRate {
		return nil, fmt.Errorf("%w: analyzer runs at %d Hz, got %d Hz", ErrUnsupportedSampleRate, SampleRate, sampleRateHz)
	}
	if uint64(len(samples)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d samples", ErrEncodingOverflow, len(samples))
	}

	frames, err := Frames(samples)
	if err != nil {
		return nil, err
	}

	sig := &Signature{
		SampleRateHz:  sampleRateHz,
		NumberSamples: uint32(len(samples)),
		Peaks:         make(map[Band][]FrequencyPeak),
	}
	for p := range ExtractPeaks(frames) {
		sig.Peaks[p.Band] = append(sig.Peaks[p.Band], p)
	}
	return sig, nil
}
