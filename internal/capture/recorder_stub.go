//go:build !cgo || js

package capture

import (
	"context"
	"errors"

	"github.com/himanishpuri/songid/pkg/logger"
)

const Available = false

var errUnavailable = errors.New("capture: built without audio input support")

func Devices() ([]Device, error) { return nil, errUnavailable }

type Recorder struct{}

func NewRecorder(int, *Ring[int16], *logger.Logger) (*Recorder, error) {
	return nil, errUnavailable
}

func (*Recorder) Run(context.Context) error { return errUnavailable }

func Close() error { return nil }
