package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWav saves a sine tone and returns its path.
func writeTestWav(t *testing.T, rate, channels int, seconds float64) string {
	t.Helper()

	frames := int(float64(rate) * seconds)
	samples := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteWav(path, &PCM{Samples: samples, SampleRate: rate, Channels: channels}); err != nil {
		t.Fatalf("WriteWav failed: %v", err)
	}
	return path
}

func TestReadWavRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		channels int
	}{
		{"mono 16k", 16000, 1},
		{"stereo 44.1k", 44100, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestWav(t, tt.rate, tt.channels, 0.5)

			pcm, err := ReadWav(path)
			if err != nil {
				t.Fatalf("ReadWav failed: %v", err)
			}
			if pcm.SampleRate != tt.rate {
				t.Errorf("Expected sample rate %d, got %d", tt.rate, pcm.SampleRate)
			}
			if pcm.Channels != tt.channels {
				t.Errorf("Expected %d channels, got %d", tt.channels, pcm.Channels)
			}
			if want := tt.rate / 2; pcm.Frames() != want {
				t.Errorf("Expected %d frames, got %d", want, pcm.Frames())
			}
			if d := pcm.Duration().Milliseconds(); d != 500 {
				t.Errorf("Expected 500ms, got %dms", d)
			}
		})
	}
}

func TestReadWavInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.wav")
	if err := os.WriteFile(path, []byte("INVALID HEADER DATA"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := ReadWav(path); !errors.Is(err, ErrNotWav) {
		t.Errorf("Expected ErrNotWav, got %v", err)
	}
}

func TestReadWavNonExistent(t *testing.T) {
	_, err := ReadWav(filepath.Join(t.TempDir(), "missing.wav"))
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestLoadMono16kFromWav(t *testing.T) {
	path := writeTestWav(t, 48000, 2, 1)

	samples, err := LoadMono16k(context.Background(), path, t.TempDir())
	if err != nil {
		t.Fatalf("LoadMono16k failed: %v", err)
	}
	if len(samples) != TargetRate {
		t.Errorf("Expected %d samples, got %d", TargetRate, len(samples))
	}
}
