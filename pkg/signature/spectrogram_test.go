package signature

import (
	"errors"
	"math"
	"testing"
)

func TestHannWindow(t *testing.T) {
	if len(hannWindow) != WindowSize {
		t.Fatalf("Expected window size %d, got %d", WindowSize, len(hannWindow))
	}
	if hannWindow[0] <= 0 || hannWindow[WindowSize-1] <= 0 {
		t.Error("Window endpoints should be non-zero")
	}
	if hannWindow[0] >= hannWindow[WindowSize/2] {
		t.Error("Hann window should be lower at edges")
	}
	if math.Abs(hannWindow[0]-hannWindow[WindowSize-1]) > 1e-12 {
		t.Error("Hann window should be symmetric")
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		n, expected int
	}{
		{0, 0},
		{WindowSize - 1, 0},
		{WindowSize, 1},
		{WindowSize + HopSize - 1, 1},
		{WindowSize + HopSize, 2},
		{16000, 110},
	}

	for _, tt := range tests {
		if got := FrameCount(tt.n); got != tt.expected {
			t.Errorf("FrameCount(%d) = %d, expected %d", tt.n, got, tt.expected)
		}
	}
}

func TestFrameSeconds(t *testing.T) {
	if got := FrameSeconds(125); got != 1.0 {
		t.Errorf("FrameSeconds(125) = %f, expected 1.0", got)
	}
}

func TestFrames(t *testing.T) {
	samples := sineWave(1000, WindowSize+3*HopSize, 12000)

	frames, err := Frames(samples)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}

	count := 0
	for k, spectrum := range frames {
		if k != count {
			t.Errorf("Expected frame index %d, got %d", count, k)
		}
		if len(spectrum) != NumBins {
			t.Fatalf("Expected %d bins, got %d", NumBins, len(spectrum))
		}

		// 1000Hz sits exactly on bin 128.
		loudest := 0
		for b, v := range spectrum {
			if v < 0 {
				t.Fatalf("Frame %d bin %d is negative: %f", k, b, v)
			}
			if v > spectrum[loudest] {
				loudest = b
			}
		}
		if loudest != 128 {
			t.Errorf("Frame %d: loudest bin %d, expected 128", k, loudest)
		}
		count++
	}
	if count != 4 {
		t.Errorf("Expected 4 frames, got %d", count)
	}

	for range frames {
		t.Fatal("Frame sequence yielded a second time")
	}
}

func TestFramesStopEarly(t *testing.T) {
	frames, err := Frames(make([]int16, 4*WindowSize))
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	seen := 0
	for range frames {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("Expected to stop after 2 frames, saw %d", seen)
	}
}

func TestFramesTooShort(t *testing.T) {
	if _, err := Frames(make([]int16, WindowSize-1)); !errors.Is(err, ErrInputTooShort) {
		t.Errorf("Expected ErrInputTooShort, got %v", err)
	}
}

func TestLogMagnitude(t *testing.T) {
	tests := []struct {
		name  string
		power float64
		check func(float32) bool
	}{
		{"zero power clamps to zero", 0, func(m float32) bool { return m == 0 }},
		{"floor power is near zero", 1.0 / 64, func(m float32) bool { return m >= 0 && m < 1 }},
		{"unit power is the offset", 1, func(m float32) bool { return m == magnitudeOffset }},
		{"louder is larger", math.E, func(m float32) bool { return math.Abs(float64(m)-(magnitudeOffset+magnitudeScale)) < 0.01 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if m := logMagnitude(tt.power); !tt.check(m) {
				t.Errorf("logMagnitude(%g) = %f", tt.power, m)
			}
		})
	}
}
