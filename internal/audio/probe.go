package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var ErrNoAudioStream = errors.New("audio: no audio stream found")

// Metadata describes an audio file as reported by ffprobe.
type Metadata struct {
	Filename   string
	Title      string
	Artist     string
	Album      string
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
	Codec      string
	Format     string
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// tag looks a tag up case-insensitively; containers disagree on case.
func (p *ffprobeOutput) tag(name string) string {
	for k, v := range p.Format.Tags {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Probe runs ffprobe on path.
func Probe(ctx context.Context, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return parseProbe(out, path)
}

func parseProbe(out []byte, path string) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	stream := probe.firstAudioStream()
	if stream == nil {
		return nil, ErrNoAudioStream
	}

	seconds, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	return &Metadata{
		Filename:   filepath.Base(path),
		Title:      probe.tag("title"),
		Artist:     probe.tag("artist"),
		Album:      probe.tag("album"),
		Duration:   time.Duration(math.Round(seconds*1000)) * time.Millisecond,
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		BitDepth:   stream.BitsPerSample,
		Codec:      stream.CodecName,
		Format:     probe.Format.Format,
	}, nil
}
