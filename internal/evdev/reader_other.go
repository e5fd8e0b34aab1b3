//go:build !linux

package evdev

import (
	"context"
	"errors"
	"log/slog"
)

// Config selects the devices to read.
type Config struct {
	Devices []string
	Grab    bool
}

// Run is only available on Linux.
func Run(ctx context.Context, cfg Config, out chan<- KeyEvent, logger *slog.Logger) error {
	return errors.New("evdev input is only supported on linux")
}
