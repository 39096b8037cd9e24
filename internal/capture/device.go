package capture

import (
	"errors"
	"fmt"
)

var ErrNoDevice = errors.New("capture: no such input device")

// Device describes an audio input.
type Device struct {
	Index      int
	Name       string
	HostAPI    string
	Channels   int
	SampleRate float64
	Default    bool
}

func (d Device) String() string {
	mark := " "
	if d.Default {
		mark = "*"
	}
	return fmt.Sprintf("%s %2d  %s (%s, %d ch, %.0f Hz)", mark, d.Index, d.Name, d.HostAPI, d.Channels, d.SampleRate)
}
