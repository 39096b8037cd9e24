package signature

import (
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"strings"
)

// Wire layout constants.
const (
	headerSize       = 48
	magic1           = 0xcafe2580
	magic2           = 0x94119c00
	fixedHeaderValue = (15 << 19) + 0x40000
	markerTag        = 0x40000000
	bandTagBase      = 0x60030040
	sampleRateShift  = 27
	longOffsetMarker = 0xff
)

// DataURIPrefix precedes the base64 text form of an encoded signature.
const DataURIPrefix = "data:audio/vnd.shazam.sig;base64,"

var errNilSignature = errors.New("signature: nil signature")

// Encode serializes sig into the binary wire format.
//
// Layout: a 48-byte header (magic, CRC-32 of everything after byte 8,
// payload size, sample rate class, sample count), a marker chunk, then one
// chunk per non-empty band in wire order. All integers are little-endian.
func Encode(sig *Signature) ([]byte, error) {
	if sig == nil {
		return nil, errNilSignature
	}
	rateID, ok := supportedRates[sig.SampleRateHz]
	if !ok {
		return nil, fmt.Errorf("%w: %d Hz", ErrUnsupportedSampleRate, sig.SampleRateHz)
	}
	samplesField := uint64(sig.NumberSamples) + uint64(sig.SampleRateHz)*24/100
	if samplesField > math.MaxUint32 {
		return nil, fmt.Errorf("%w: sample count %d", ErrEncodingOverflow, sig.NumberSamples)
	}

	var body byteWriter
	for _, band := range bandOrder {
		peaks := sig.Peaks[band]
		if len(peaks) == 0 {
			continue
		}
		records, err := encodePeaks(band, peaks)
		if err != nil {
			return nil, err
		}
		if uint64(len(records)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: band %v chunk of %d bytes", ErrEncodingOverflow, band, len(records))
		}
		body.u32(uint32(bandTagBase + int64(band)))
		body.u32(uint32(len(records)))
		body.write(records)
		body.pad(4)
	}

	payloadSize := uint64(body.len()) + 8
	if payloadSize > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrEncodingOverflow, payloadSize)
	}

	w := byteWriter{buf: make([]byte, 0, headerSize+int(payloadSize))}
	w.u32(magic1)
	w.u32(0) // checksum, patched below
	w.u32(uint32(payloadSize))
	w.u32(magic2)
	w.u32(0)
	w.u32(0)
	w.u32(0)
	w.u32(rateID << sampleRateShift)
	w.u32(0)
	w.u32(0)
	w.u32(uint32(samplesField))
	w.u32(fixedHeaderValue)
	w.u32(markerTag)
	w.u32(uint32(payloadSize))
	w.write(body.buf)

	out := w.buf
	putChecksum(out)
	return out, nil
}

func putChecksum(blob []byte) {
	sum := crc32.ChecksumIEEE(blob[8:])
	blob[4] = byte(sum)
	blob[5] = byte(sum >> 8)
	blob[6] = byte(sum >> 16)
	blob[7] = byte(sum >> 24)
}

// encodePeaks writes the delta-coded records of one band. A delta of 255 or
// more is escaped as a 0xff byte followed by the absolute frame offset.
// Records carry no band of their own, so every peak must belong to band.
func encodePeaks(band Band, peaks []FrequencyPeak) ([]byte, error) {
	w := byteWriter{buf: make([]byte, 0, len(peaks)*5)}
	var prev uint32
	for i, p := range peaks {
		if p.Band != band {
			return nil, fmt.Errorf("%w: peak %d tagged %v in band %v chunk", ErrEncodingOverflow, i, p.Band, band)
		}
		if p.FrameOffset < prev {
			return nil, fmt.Errorf("%w: band %v peak %d at frame %d precedes frame %d", ErrEncodingOverflow, band, i, p.FrameOffset, prev)
		}
		if p.FrameOffset-prev >= longOffsetMarker {
			w.u8(longOffsetMarker)
			w.u32(p.FrameOffset)
			prev = p.FrameOffset
		}
		w.u8(uint8(p.FrameOffset - prev))
		w.u16(p.Magnitude)
		w.u16(p.CorrectedBin)
		prev = p.FrameOffset
	}
	return w.buf, nil
}

// Decode parses a binary signature, validating magic values, declared
// length, checksum, sample rate class and band tags.
func Decode(data []byte) (*Signature, error) {
	if len(data) < headerSize+8 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptSignature, len(data))
	}
	r := &byteReader{buf: data}

	// The reads below cannot fail: the length was checked above.
	m1, _ := r.u32()
	if m1 != magic1 {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrCorruptSignature, m1)
	}
	sum, _ := r.u32()
	payloadSize, _ := r.u32()
	if uint64(payloadSize) != uint64(len(data)-headerSize) {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, have %d", ErrCorruptSignature, payloadSize, len(data)-headerSize)
	}
	if got := crc32.ChecksumIEEE(data[8:]); got != sum {
		return nil, fmt.Errorf("%w: checksum %#08x, header says %#08x", ErrCorruptSignature, got, sum)
	}
	m2, _ := r.u32()
	if m2 != magic2 {
		return nil, fmt.Errorf("%w: bad second magic %#08x", ErrCorruptSignature, m2)
	}
	_ = r.skip(12)
	rateField, _ := r.u32()
	rate, ok := sampleRateForID(rateField >> sampleRateShift)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sample rate class %d", ErrCorruptSignature, rateField>>sampleRateShift)
	}
	_ = r.skip(8)
	samplesField, _ := r.u32()
	padding := uint32(rate * 24 / 100)
	if samplesField < padding {
		return nil, fmt.Errorf("%w: sample count field %d below %d", ErrCorruptSignature, samplesField, padding)
	}
	_, _ = r.u32()

	tag, _ := r.u32()
	if tag != markerTag {
		return nil, fmt.Errorf("%w: bad marker chunk %#08x", ErrCorruptSignature, tag)
	}
	markerSize, _ := r.u32()
	if markerSize != payloadSize {
		return nil, fmt.Errorf("%w: marker declares %d bytes, header %d", ErrCorruptSignature, markerSize, payloadSize)
	}

	sig := &Signature{
		SampleRateHz:  rate,
		NumberSamples: samplesField - padding,
		Peaks:         make(map[Band][]FrequencyPeak),
	}
	seen := make(map[Band]bool)
	for r.remaining() > 0 {
		tag, err := r.u32()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		band := Band(int32(tag - bandTagBase))
		if !band.Valid() {
			return nil, fmt.Errorf("%w: unknown band tag %#08x", ErrCorruptSignature, tag)
		}
		if seen[band] {
			return nil, fmt.Errorf("%w: duplicate chunk for band %v", ErrCorruptSignature, band)
		}
		seen[band] = true

		if uint64(size) > uint64(r.remaining()) {
			return nil, fmt.Errorf("%w: band %v chunk of %d bytes overruns payload", ErrCorruptSignature, band, size)
		}
		records, _ := r.next(int(size))
		if err := r.skip(int((4 - size%4) % 4)); err != nil {
			return nil, err
		}

		peaks, err := decodePeaks(band, records)
		if err != nil {
			return nil, err
		}
		if len(peaks) > 0 {
			sig.Peaks[band] = peaks
		}
	}
	return sig, nil
}

func decodePeaks(band Band, records []byte) ([]FrequencyPeak, error) {
	r := &byteReader{buf: records}
	peaks := make([]FrequencyPeak, 0, len(records)/5)
	var offset uint32
	for r.remaining() > 0 {
		delta, _ := r.u8()
		if delta == longOffsetMarker {
			abs, err := r.u32()
			if err != nil {
				return nil, err
			}
			if abs < offset {
				return nil, fmt.Errorf("%w: band %v offset moves back from %d to %d", ErrCorruptSignature, band, offset, abs)
			}
			offset = abs
			continue
		}
		if uint32(delta) > math.MaxUint32-offset {
			return nil, fmt.Errorf("%w: band %v frame offset overflows", ErrCorruptSignature, band)
		}
		offset += uint32(delta)

		magnitude, err := r.u16()
		if err != nil {
			return nil, err
		}
		bin, err := r.u16()
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, FrequencyPeak{
			Band:         band,
			FrameOffset:  offset,
			Magnitude:    magnitude,
			CorrectedBin: bin,
		})
	}
	return peaks, nil
}

// EncodeURI encodes sig and wraps it in a data URI suitable for JSON bodies.
func EncodeURI(sig *Signature) (string, error) {
	blob, err := Encode(sig)
	if err != nil {
		return "", err
	}
	return DataURIPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// DecodeURI reverses EncodeURI. The URL-safe base64 alphabet is accepted too.
func DecodeURI(uri string) (*Signature, error) {
	text, ok := strings.CutPrefix(uri, DataURIPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrCorruptSignature, DataURIPrefix)
	}
	blob, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		var urlErr error
		if blob, urlErr = base64.URLEncoding.DecodeString(text); urlErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSignature, err)
		}
	}
	return Decode(blob)
}
