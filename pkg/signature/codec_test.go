package signature

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

func sampleSignature() *Signature {
	return &Signature{
		SampleRateHz:  SampleRate,
		NumberSamples: 12 * SampleRate,
		Peaks: map[Band][]FrequencyPeak{
			Band0To250: {
				{Band: Band0To250, FrameOffset: 3, Magnitude: 9000, CorrectedBin: 1500},
			},
			Band250To520: {
				{Band: Band250To520, FrameOffset: 0, Magnitude: 21000, CorrectedBin: 2400},
				{Band: Band250To520, FrameOffset: 10, Magnitude: 20500, CorrectedBin: 2410},
			},
			Band1450To3500: {
				{Band: Band1450To3500, FrameOffset: 5, Magnitude: 18000, CorrectedBin: 15000},
				{Band: Band1450To3500, FrameOffset: 300, Magnitude: 17000, CorrectedBin: 16000},
				{Band: Band1450To3500, FrameOffset: 301, Magnitude: 17500, CorrectedBin: 16010},
				{Band: Band1450To3500, FrameOffset: 1000, Magnitude: 65535, CorrectedBin: 45000},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sig  *Signature
	}{
		{"sample", sampleSignature()},
		{"no peaks", &Signature{SampleRateHz: SampleRate, NumberSamples: 4096, Peaks: map[Band][]FrequencyPeak{}}},
		{"nil peak map", &Signature{SampleRateHz: 8000, NumberSamples: 1}},
		{"44.1kHz header", &Signature{SampleRateHz: 44100, NumberSamples: 44100, Peaks: map[Band][]FrequencyPeak{
			Band3500To5500: {{Band: Band3500To5500, FrameOffset: 254, Magnitude: 1, CorrectedBin: 2}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encode(tt.sig)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(blob)%4 != 0 {
				t.Errorf("Blob length %d is not 4-byte aligned", len(blob))
			}

			decoded, err := Decode(blob)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !tt.sig.Equal(decoded) {
				t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", decoded, tt.sig)
			}
		})
	}
}

func TestEncodeHeader(t *testing.T) {
	sig := sampleSignature()
	blob, err := Encode(sig)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(blob[off:]) }

	if u32(0) != magic1 {
		t.Errorf("Expected magic %#x, got %#x", magic1, u32(0))
	}
	if int(u32(8)) != len(blob)-headerSize {
		t.Errorf("Size field %d, expected %d", u32(8), len(blob)-headerSize)
	}
	if u32(12) != magic2 {
		t.Errorf("Expected second magic %#x, got %#x", magic2, u32(12))
	}
	if u32(28) != 3<<27 {
		t.Errorf("Expected 16kHz rate class, got %#x", u32(28))
	}
	if want := sig.NumberSamples + 3840; u32(40) != want {
		t.Errorf("Sample count field %d, expected %d", u32(40), want)
	}
	if u32(48) != markerTag || u32(52) != u32(8) {
		t.Errorf("Unexpected marker chunk %#x/%d", u32(48), u32(52))
	}
	if u32(56) != 0x6003003f {
		t.Errorf("First band chunk tag %#x, expected the 0-250Hz tag", u32(56))
	}
}

func TestEncodeLongOffsetEscape(t *testing.T) {
	peaks := sampleSignature().Peaks[Band1450To3500]
	records, err := encodePeaks(Band1450To3500, peaks)
	if err != nil {
		t.Fatalf("encodePeaks failed: %v", err)
	}

	// 5 + (5 + 5) + 5 + (5 + 5) bytes: offsets 300 and 1000 need an escape.
	if len(records) != 30 {
		t.Errorf("Expected 30 record bytes, got %d", len(records))
	}
	if records[5] != longOffsetMarker {
		t.Errorf("Expected escape byte at 5, got %#x", records[5])
	}
	if got := binary.LittleEndian.Uint32(records[6:]); got != 300 {
		t.Errorf("Escaped offset %d, expected 300", got)
	}
	if records[10] != 0 {
		t.Errorf("Expected zero delta after escape, got %d", records[10])
	}
	if records[15] != 1 {
		t.Errorf("Expected delta 1, got %d", records[15])
	}

	decoded, err := decodePeaks(Band1450To3500, records)
	if err != nil {
		t.Fatalf("decodePeaks failed: %v", err)
	}
	if len(decoded) != len(peaks) {
		t.Fatalf("Expected %d peaks, got %d", len(peaks), len(decoded))
	}
	for i := range peaks {
		if decoded[i] != peaks[i] {
			t.Errorf("Peak %d: got %+v, expected %+v", i, decoded[i], peaks[i])
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		sig     *Signature
		wantErr error
	}{
		{"unsupported rate", &Signature{SampleRateHz: 22050}, ErrUnsupportedSampleRate},
		{"sample count overflow", &Signature{SampleRateHz: SampleRate, NumberSamples: math.MaxUint32}, ErrEncodingOverflow},
		{"peaks out of order", &Signature{SampleRateHz: SampleRate, NumberSamples: 1, Peaks: map[Band][]FrequencyPeak{
			Band250To520: {{FrameOffset: 9}, {FrameOffset: 2}},
		}}, ErrEncodingOverflow},
		{"peak filed under another band", &Signature{SampleRateHz: SampleRate, NumberSamples: 1, Peaks: map[Band][]FrequencyPeak{
			Band250To520: {{Band: Band3500To5500, FrameOffset: 1}},
		}}, ErrEncodingOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.sig); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := Encode(nil); err == nil {
		t.Error("Expected error for nil signature")
	}
}

func TestDecodeDetectsEveryByteFlip(t *testing.T) {
	blob, err := Encode(sampleSignature())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for i := range blob {
		corrupted := bytes.Clone(blob)
		corrupted[i] ^= 0x5a
		if _, err := Decode(corrupted); !errors.Is(err, ErrCorruptSignature) {
			t.Errorf("Flipping byte %d: expected ErrCorruptSignature, got %v", i, err)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	valid, err := Encode(sampleSignature())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// mutate applies a change and re-signs the blob so only the targeted
	// check can fail.
	mutate := func(change func([]byte) []byte) []byte {
		b := change(bytes.Clone(valid))
		if len(b) >= headerSize {
			putChecksum(b)
		}
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", valid[:headerSize]},
		{"truncated", valid[:len(valid)-4]},
		{"trailing bytes", append(bytes.Clone(valid), 0, 0, 0, 0)},
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 0; return b })},
		{"bad second magic", mutate(func(b []byte) []byte { b[15] = 0; return b })},
		{"unknown rate class", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[28:], 7<<27)
			return b
		})},
		{"bad marker", mutate(func(b []byte) []byte { b[48] = 1; return b })},
		{"marker size mismatch", mutate(func(b []byte) []byte { b[52]++; return b })},
		{"unknown band", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[56:], bandTagBase+4)
			return b
		})},
		{"duplicate band", mutate(func(b []byte) []byte {
			// Retag the 0-250Hz chunk as the 250-520Hz band that follows it.
			binary.LittleEndian.PutUint32(b[56:], bandTagBase)
			return b
		})},
		{"chunk overruns payload", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[60:], 1<<20)
			return b
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, ErrCorruptSignature) {
				t.Errorf("Expected ErrCorruptSignature, got %v", err)
			}
		})
	}
}

func TestDecodePeaksRejectsBackwardOffset(t *testing.T) {
	var w byteWriter
	w.u8(10)
	w.u16(1)
	w.u16(1)
	w.u8(longOffsetMarker)
	w.u32(4)
	w.u8(0)
	w.u16(1)
	w.u16(1)

	if _, err := decodePeaks(Band250To520, w.buf); !errors.Is(err, ErrCorruptSignature) {
		t.Errorf("Expected ErrCorruptSignature, got %v", err)
	}
}

func TestURI(t *testing.T) {
	uri, err := EncodeURI(sampleSignature())
	if err != nil {
		t.Fatalf("EncodeURI failed: %v", err)
	}
	if !strings.HasPrefix(uri, DataURIPrefix) {
		t.Fatalf("URI %q lacks the data prefix", uri[:40])
	}

	sig, err := DecodeURI(uri)
	if err != nil {
		t.Fatalf("DecodeURI failed: %v", err)
	}
	if !sig.Equal(sampleSignature()) {
		t.Error("URI round trip mismatch")
	}

	urlSafe := DataURIPrefix + strings.NewReplacer("+", "-", "/", "_").Replace(strings.TrimPrefix(uri, DataURIPrefix))
	if _, err := DecodeURI(urlSafe); err != nil {
		t.Errorf("URL-safe alphabet rejected: %v", err)
	}

	for _, bad := range []string{"", "data:text/plain;base64,AAAA", DataURIPrefix + "***"} {
		if _, err := DecodeURI(bad); !errors.Is(err, ErrCorruptSignature) {
			t.Errorf("DecodeURI(%q): expected ErrCorruptSignature, got %v", bad, err)
		}
	}
}
