package signature

import (
	"fmt"
	"slices"
	"time"
)

// Band is a frequency range used to bucket spectral peaks. The numeric value
// is the id used on the wire (chunk tag = 0x60030040 + id).
type Band int32

const (
	Band0To250     Band = -1
	Band250To520   Band = 0
	Band520To1450  Band = 1
	Band1450To3500 Band = 2
	Band3500To5500 Band = 3
)

// bandOrder is the order bands are written in. It is sorted by wire id.
var bandOrder = [...]Band{Band0To250, Band250To520, Band520To1450, Band1450To3500, Band3500To5500}

// bandEdges holds the [low, high) frequency range of each band in Hz.
var bandEdges = map[Band][2]float64{
	Band0To250:     {0, 250},
	Band250To520:   {250, 520},
	Band520To1450:  {520, 1450},
	Band1450To3500: {1450, 3500},
	Band3500To5500: {3500, 5500},
}

// Bands returns every band in wire order.
func Bands() []Band {
	out := make([]Band, len(bandOrder))
	copy(out, bandOrder[:])
	return out
}

// Valid reports whether b is a known band.
func (b Band) Valid() bool {
	_, ok := bandEdges[b]
	return ok
}

// Range returns the [low, high) frequency range of the band in Hz.
func (b Band) Range() (low, high float64) {
	r := bandEdges[b]
	return r[0], r[1]
}

func (b Band) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Band(%d)", int32(b))
	}
	low, high := b.Range()
	return fmt.Sprintf("%g-%gHz", low, high)
}

// bandForFrequency returns the band covering hz, or false outside 0-5500 Hz.
func bandForFrequency(hz float64) (Band, bool) {
	for _, b := range bandOrder {
		low, high := b.Range()
		if hz >= low && hz < high {
			return b, true
		}
	}
	return 0, false
}

// supportedRates maps each sample rate the wire format can express to its
// class id.
var supportedRates = map[int]uint32{
	8000:  1,
	11025: 2,
	16000: 3,
	32000: 4,
	44100: 5,
	48000: 6,
}

// SupportedSampleRate reports whether hz can be carried in a signature header.
func SupportedSampleRate(hz int) bool {
	_, ok := supportedRates[hz]
	return ok
}

func sampleRateForID(id uint32) (int, bool) {
	for hz, v := range supportedRates {
		if v == id {
			return hz, true
		}
	}
	return 0, false
}

// FrequencyPeak is one spectral landmark.
type FrequencyPeak struct {
	Band Band
	// FrameOffset is the analysis frame the peak was found in.
	FrameOffset uint32
	// Magnitude is ln(power)*1477.3 + 6144, quantized.
	Magnitude uint16
	// CorrectedBin is the FFT bin times 64 plus a sub-bin correction.
	CorrectedBin uint16
}

// Frequency returns the peak frequency in Hz for a signature sampled at
// sampleRateHz.
func (p FrequencyPeak) Frequency(sampleRateHz int) float64 {
	return float64(p.CorrectedBin) * float64(sampleRateHz) / 2 / 1024 / 64
}

// Seconds returns the elapsed time of the peak's frame.
func (p FrequencyPeak) Seconds(sampleRateHz int) float64 {
	return float64(p.FrameOffset) * HopSize / float64(sampleRateHz)
}

// Signature is an assembled set of peaks for one audio buffer. It is treated
// as immutable once returned by MakeSignature or Decode.
type Signature struct {
	SampleRateHz  int
	NumberSamples uint32
	Peaks         map[Band][]FrequencyPeak
}

// PeakCount returns the total number of peaks across bands.
func (s *Signature) PeakCount() int {
	n := 0
	for _, peaks := range s.Peaks {
		n += len(peaks)
	}
	return n
}

// Duration returns the length of the audio the signature was made from.
func (s *Signature) Duration() time.Duration {
	if s.SampleRateHz == 0 {
		return 0
	}
	return time.Duration(float64(s.NumberSamples) / float64(s.SampleRateHz) * float64(time.Second))
}

// Equal reports whether two signatures carry the same header fields and the
// same peaks. A missing band and an empty band compare equal.
func (s *Signature) Equal(o *Signature) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.SampleRateHz != o.SampleRateHz || s.NumberSamples != o.NumberSamples {
		return false
	}
	for _, b := range bandOrder {
		if !slices.Equal(s.Peaks[b], o.Peaks[b]) {
			return false
		}
	}
	return true
}

// SampleMs returns the audio length in whole milliseconds.
func (s *Signature) SampleMs() uint32 {
	if s.SampleRateHz == 0 {
		return 0
	}
	return uint32(uint64(s.NumberSamples) * 1000 / uint64(s.SampleRateHz))
}
