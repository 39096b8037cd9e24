package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrNotWav            = errors.New("audio: not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("audio: unsupported WAV encoding")
)

// PCM holds interleaved 16-bit samples and their format.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the playback length.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// ReadWav reads a 16-bit PCM WAV file.
func ReadWav(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return DecodeWav(f)
}

// DecodeWav decodes a 16-bit PCM WAV stream. Chunks other than fmt and data
// are skipped.
func DecodeWav(r io.ReadSeeker) (*PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWav
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: format tag %d, only PCM (1) supported", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample, only 16-bit supported", ErrUnsupportedFormat, dec.BitDepth)
	}
	if dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding PCM samples: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	return &PCM{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// EncodeWav writes p as a 16-bit PCM WAV stream.
func EncodeWav(w io.WriteSeeker, p *PCM) error {
	enc := wav.NewEncoder(w, p.SampleRate, 16, p.Channels, 1)

	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding PCM samples: %w", err)
	}
	return enc.Close()
}

// WriteWav saves p to path as a 16-bit PCM WAV file.
func WriteWav(path string, p *PCM) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWav(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
