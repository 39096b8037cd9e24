//go:build cgo && !js

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/himanishpuri/songid/internal/audio"
	"github.com/himanishpuri/songid/pkg/logger"
)

// Available reports whether live capture was compiled in.
const Available = true

var (
	initOnce sync.Once
	initErr  error
)

func initialize() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Devices lists audio devices that can record.
func Devices() ([]Device, error) {
	if err := initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var def *portaudio.DeviceInfo
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		def = d
	}

	var out []Device
	for _, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		host := ""
		if info.HostApi != nil {
			host = info.HostApi.Name
		}
		out = append(out, Device{
			Index:      info.Index,
			Name:       info.Name,
			HostAPI:    host,
			Channels:   info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
			Default:    def != nil && def.Index == info.Index,
		})
	}
	return out, nil
}

// Recorder streams one input device into a Ring as mono samples at
// audio.TargetRate.
type Recorder struct {
	device *portaudio.DeviceInfo
	ring   *Ring[int16]
	log    *logger.Logger
}

// NewRecorder opens the device with the given index, or the default input
// device when index is negative.
func NewRecorder(index int, ring *Ring[int16], log *logger.Logger) (*Recorder, error) {
	if err := initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	var dev *portaudio.DeviceInfo
	if index < 0 {
		d, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		dev = d
	} else {
		infos, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		for _, info := range infos {
			if info.Index == index {
				dev = info
				break
			}
		}
		if dev == nil {
			return nil, fmt.Errorf("%w: %d", ErrNoDevice, index)
		}
	}
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: %q has no input channels", ErrNoDevice, dev.Name)
	}

	return &Recorder{device: dev, ring: ring, log: log.With("[capture]")}, nil
}

// Run records until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	params := portaudio.HighLatencyParameters(r.device, nil)
	channels := params.Input.Channels
	rate := int(params.SampleRate)

	conv, err := audio.NewConverter(rate, audio.TargetRate, channels)
	if err != nil {
		return err
	}

	// Callbacks run on a portaudio thread; conversion errors are reported
	// back through errc.
	errc := make(chan error, 1)
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		out, err := conv.Convert(in)
		if err != nil {
			select {
			case errc <- err:
			default:
			}
			return
		}
		r.ring.Write(out)
	})
	if err != nil {
		return fmt.Errorf("opening input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting input stream: %w", err)
	}
	r.log.Infof("Recording from %q at %d Hz, %d channel(s)", r.device.Name, rate, channels)

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	if stopErr := stream.Stop(); stopErr != nil && err == nil {
		err = fmt.Errorf("stopping input stream: %w", stopErr)
	}
	if dropped := r.ring.Dropped(); dropped > 0 {
		r.log.Debugf("Ring overwrote %d unread samples", dropped)
	}
	return err
}

// Close releases portaudio.
func Close() error {
	return portaudio.Terminate()
}
