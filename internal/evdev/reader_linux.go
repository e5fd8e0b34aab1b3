//go:build linux

package evdev

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// EVIOCGRAB from <linux/input.h>: _IOW('E', 0x90, int).
const eviocgrab = 0x40044590

// waitMS bounds each epoll_wait so cancellation is noticed.
const waitMS = 200

// Config selects the devices to read.
type Config struct {
	Devices []string
	// Grab takes exclusive access so key presses do not also reach the
	// terminal or desktop.
	Grab bool
}

// Run reads key events from every configured device with a single epoll
// loop and sends them on out until ctx is canceled. Any device error or
// hangup stops the reader.
func Run(ctx context.Context, cfg Config, out chan<- KeyEvent, logger *slog.Logger) error {
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no input devices provided")
	}

	files := make([]*os.File, 0, len(cfg.Devices))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, path := range cfg.Devices {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", path, err)
		}
		files = append(files, f)

		if cfg.Grab {
			if err := unix.IoctlSetInt(int(f.Fd()), eviocgrab, 1); err != nil {
				return fmt.Errorf("grab %s: %w", path, err)
			}
		}
		logger.Info("input device opened", "device", path, "grab", cfg.Grab)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, eventSize)
	reader := bytes.NewReader(buf)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, waitMS)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s", f.Name())
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			ev, ok := decode(reader, buf)
			if !ok {
				continue
			}
			kev, ok := Translate(ev)
			if !ok {
				continue
			}
			kev.Device = f.Name()

			select {
			case out <- kev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
