package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// TargetRate is the sample rate signatures are generated at.
const TargetRate = 16000

type ConvertWAVConfig struct {
	SampleRate int // defaults to TargetRate
	// Timeout bounds the ffmpeg run when ctx carries no deadline.
	Timeout time.Duration
}

// ConvertToMonoWAV transcodes any ffmpeg-readable file into a mono 16-bit
// PCM WAV in outputDir and returns its path. The caller owns the output file.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = TargetRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, fmt.Sprintf("%s.mono%d.wav", baseName, cfg.SampleRate))

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return "", fmt.Errorf("failed to move file from %s to %s: %w", tmpPath, outputPath, err)
	}

	return outputPath, nil
}

// LoadMono16k reads an audio file as mono samples at TargetRate. WAV files
// are decoded directly; anything else is transcoded with ffmpeg into
// tempDir first.
func LoadMono16k(ctx context.Context, path, tempDir string) ([]int16, error) {
	pcm, err := ReadWav(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}

		wavPath, convErr := ConvertToMonoWAV(ctx, path, tempDir, ConvertWAVConfig{SampleRate: TargetRate})
		if convErr != nil {
			return nil, fmt.Errorf("audio conversion failed: %w", convErr)
		}
		defer os.Remove(wavPath)

		if pcm, err = ReadWav(wavPath); err != nil {
			return nil, fmt.Errorf("failed to read converted WAV: %w", err)
		}
	}

	return pcm.Mono(TargetRate)
}

// Mono downmixes p and converts it to rate.
func (p *PCM) Mono(rate int) ([]int16, error) {
	return Resample(ToMono(p.Samples, p.Channels), p.SampleRate, rate)
}
