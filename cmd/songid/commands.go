package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/himanishpuri/songid/internal/audio"
	"github.com/himanishpuri/songid/internal/capture"
	"github.com/himanishpuri/songid/internal/presence"
	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/himanishpuri/songid/pkg/signature"
)

// splitArgs separates leading positional arguments from trailing flags.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") && arg != "-" {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func handleSignature(args []string) error {
	positional, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("signature", flag.ExitOnError)
	asJSON := cmd.Bool("json", false, "Print the signature summary as JSON")
	cmd.Parse(flagArgs)

	if len(positional) != 1 {
		return errors.New("usage: songid signature <audio_file> [--json]")
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sig, err := svc.SignatureFromFile(ctx, positional[0])
	if err != nil {
		return err
	}
	uri, err := signature.EncodeURI(sig)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(struct {
			URI string `json:"uri"`
			summary
		}{uri, summarize(sig)})
	}
	fmt.Println(uri)
	return nil
}

func handleDecode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: songid decode <data_uri|signature_file>")
	}

	input := args[0]
	var (
		sig *signature.Signature
		err error
	)
	if strings.HasPrefix(input, signature.DataURIPrefix) {
		sig, err = signature.DecodeURI(input)
	} else {
		var raw []byte
		if raw, err = os.ReadFile(input); err != nil {
			return err
		}
		text := strings.TrimSpace(string(raw))
		if strings.HasPrefix(text, signature.DataURIPrefix) {
			sig, err = signature.DecodeURI(text)
		} else {
			sig, err = signature.Decode(raw)
		}
	}
	if err != nil {
		return err
	}

	return printJSON(summarize(sig))
}

func handleRecognize(args []string) error {
	positional, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("recognize", flag.ExitOnError)
	asJSON := cmd.Bool("json", false, "Print the raw service response")
	cmd.Parse(flagArgs)

	if len(positional) != 1 {
		return errors.New("usage: songid recognize <audio_file> [--json]")
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio file...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	song, err := svc.RecognizeFile(ctx, positional[0])
	if errors.Is(err, recognize.ErrNoMatch) {
		fmt.Println("\n❌ No match found")
		return nil
	}
	if err != nil {
		return err
	}

	if *asJSON {
		_, err := os.Stdout.Write(append(song.RawJSON, '\n'))
		return err
	}
	fmt.Println(presence.Card(song, song.RecognizedAt))
	return nil
}

func handleListen(args []string) error {
	cmd := flag.NewFlagSet("listen", flag.ExitOnError)
	device := cmd.Int("device", -1, "Input device index (see 'songid devices'), default input if negative")
	cmd.Parse(args)

	log := logger.GetLogger()
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	// Room for two windows so a slow recognition does not lose audio.
	ring := capture.NewRing[int16](2 * int(interval.Seconds()*signature.SampleRate))
	rec, err := capture.NewRecorder(*device, ring, log.With("capture"))
	if err != nil {
		return err
	}
	defer capture.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- rec.Run(ctx)
	}()

	fmt.Printf("🎙️  Recording audio in %v intervals... Press Ctrl+C to stop.\n", interval)
	if err := svc.Listen(ctx, ring); err != nil {
		return err
	}

	stop()
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if n := ring.Dropped(); n > 0 {
		log.Warnf("Dropped %d samples while recognizing", n)
	}
	return nil
}

func handleDevices() error {
	devices, err := capture.Devices()
	if err != nil {
		return err
	}
	defer capture.Close()

	if len(devices) == 0 {
		fmt.Println("\n📭 No input devices found")
		return nil
	}
	fmt.Printf("\n🎙️  Found %d input device(s):\n\n", len(devices))
	for _, d := range devices {
		fmt.Println(d)
	}
	return nil
}

func handleHistory(args []string) error {
	cmd := flag.NewFlagSet("history", flag.ExitOnError)
	limit := cmd.Int("limit", 20, "Number of entries to show, 0 for all")
	cmd.Parse(args)

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	rows, err := svc.History(*limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("\n📭 No recognitions yet")
		return nil
	}

	fmt.Printf("\n📚 %d recognition(s):\n\n", len(rows))
	for i, r := range rows {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, r.Title, r.Artist)
		fmt.Printf("   %s | heard %dx | %s\n", r.LastSeenAt.Local().Format("2006-01-02 15:04"), r.Hits, r.Source)
		fmt.Printf("   ID: %s\n\n", r.ID)
	}
	return nil
}

func handleExport(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: songid export <file.csv|->")
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	if args[0] == "-" {
		return svc.ExportHistory(os.Stdout)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := svc.ExportHistory(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("✅ Exported history to %s\n", args[0])
	return nil
}

func handleDelete(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: songid delete <recognition_id>")
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	rec, err := svc.GetRecognition(args[0])
	if err != nil {
		return err
	}
	if err := svc.DeleteRecognition(rec.ID); err != nil {
		return err
	}

	fmt.Printf("\n✅ Deleted recognition:\n")
	fmt.Printf("   ID:     %s\n", rec.ID)
	fmt.Printf("   Title:  %s\n", rec.Title)
	fmt.Printf("   Artist: %s\n", rec.Artist)
	return nil
}

func handleSpectrogram(args []string) error {
	positional, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	cfg := audio.DefaultSpectrogramConfig()
	cmd.IntVar(&cfg.Width, "width", cfg.Width, "Image width in pixels")
	cmd.IntVar(&cfg.Height, "height", cfg.Height, "Image height in pixels")
	cmd.BoolVar(&cfg.Log, "log", cfg.Log, "Logarithmic magnitude scale")
	cmd.Parse(flagArgs)

	if len(positional) != 2 {
		return errors.New("usage: songid spectrogram <audio_file> <image.png>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	samples, err := audio.LoadMono16k(ctx, positional[0], tempDir)
	if err != nil {
		return err
	}
	if err := audio.RenderSpectrogram(samples, audio.TargetRate, positional[1], cfg); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s\n", positional[1])
	return nil
}

func handleProbe(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: songid probe <audio_file>")
	}

	meta, err := audio.Probe(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("\n🎵 %s\n", meta.Filename)
	if meta.Title != "" || meta.Artist != "" {
		fmt.Printf("   Tags:     \"%s\" by %s\n", meta.Title, meta.Artist)
	}
	if meta.Album != "" {
		fmt.Printf("   Album:    %s\n", meta.Album)
	}
	fmt.Printf("   Format:   %s (%s)\n", meta.Format, meta.Codec)
	fmt.Printf("   Audio:    %d Hz, %d ch\n", meta.SampleRate, meta.Channels)
	sec := int(meta.Duration / time.Second)
	fmt.Printf("   Duration: %d:%02d\n", sec/60, sec%60)
	return nil
}

type bandSummary struct {
	Band  string `json:"band"`
	Peaks int    `json:"peaks"`
}

type summary struct {
	SampleRate int           `json:"sample_rate"`
	Samples    uint32        `json:"samples"`
	DurationMs uint32        `json:"duration_ms"`
	PeakCount  int           `json:"peak_count"`
	Bands      []bandSummary `json:"bands"`
}

func summarize(sig *signature.Signature) summary {
	s := summary{
		SampleRate: sig.SampleRateHz,
		Samples:    sig.NumberSamples,
		DurationMs: sig.SampleMs(),
		PeakCount:  sig.PeakCount(),
	}
	for _, b := range signature.Bands() {
		if n := len(sig.Peaks[b]); n > 0 {
			s.Bands = append(s.Bands, bandSummary{Band: b.String(), Peaks: n})
		}
	}
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
