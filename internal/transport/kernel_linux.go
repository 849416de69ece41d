//go:build linux

package transport

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type unixKernelDevice struct {
	fd int
}

func openKernelDevice(path string) (kernelDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	return &unixKernelDevice{fd: fd}, nil
}

func (d *unixKernelDevice) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(d.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return max(n, 0), err
		}

		return n, nil
	}
}

func (d *unixKernelDevice) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
			return 0, nil
		}
		break
	}

	for {
		n, err := unix.Read(d.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		return n, nil
	}
}

func (d *unixKernelDevice) Close() error {
	return unix.Close(d.fd)
}
