package audio

import (
	"errors"
	"image"
	"image/draw"

	"github.com/eligwz/spectrogram"
)

type SpectrogramConfig struct {
	Width  int
	Height int // also the number of frequency bins
	Log    bool
}

func DefaultSpectrogramConfig() SpectrogramConfig {
	return SpectrogramConfig{Width: 2048, Height: 512}
}

// RenderSpectrogram draws a magnitude spectrogram of mono samples and saves
// it as a PNG.
func RenderSpectrogram(samples []int16, sampleRate int, outPath string, cfg SpectrogramConfig) error {
	if len(samples) == 0 {
		return errors.New("no samples to render")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg = DefaultSpectrogramConfig()
	}

	normalized := make([]float64, len(samples))
	for i, s := range samples {
		normalized[i] = float64(s) / 32768.0
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, cfg.Width, cfg.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude.
	spectrogram.Drawfft(
		img,
		normalized,
		uint32(sampleRate),
		uint32(cfg.Height),
		false,
		false,
		true,
		cfg.Log,
	)

	return spectrogram.SavePng(img, outPath)
}
