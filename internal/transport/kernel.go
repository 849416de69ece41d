package transport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// KernelTransport talks to a printer through a kernel character device such as /dev/usb/lp0.
type KernelTransport struct {
	path        string
	readTimeout time.Duration

	mu      sync.Mutex
	dev     kernelDevice
	writeMu sync.Mutex
}

// kernelDevice is the platform specific handle behind KernelTransport.
type kernelDevice interface {
	Write(p []byte) (int, error)
	// ReadTimeout waits up to timeout for data; zero bytes and a nil error mean nothing arrived.
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

func NewKernelTransport(path string, readTimeout time.Duration) *KernelTransport {
	if readTimeout <= 0 {
		readTimeout = defaultKernelReadTimeout
	}

	return &KernelTransport{path: path, readTimeout: readTimeout}
}

func kernelBackend(opts Options) Backend {
	return Backend{
		Kind:     KindKernel,
		Readback: true,
		Discover: func(ctx context.Context) ([]Device, error) {
			return discoverKernelDevices(ctx, opts.KernelDeviceGlob)
		},
		New: func(address string) (Transport, error) {
			path, err := kernelDevicePath(address, opts.KernelDeviceGlob)
			if err != nil {
				return nil, err
			}

			return NewKernelTransport(path, opts.KernelReadTimeout), nil
		},
	}
}

// kernelDevicePath maps file:///dev/usb/lp0, /dev/usb/lp0 or lp0 to a device path.
// An empty address selects the first device matching glob.
func kernelDevicePath(address, glob string) (string, error) {
	address = strings.TrimPrefix(strings.TrimSpace(address), "file://")
	if address == "" {
		paths, err := filepath.Glob(glob)
		if err != nil {
			return "", fmt.Errorf("glob kernel devices: %w", err)
		}
		if len(paths) == 0 {
			return "", fmt.Errorf("no kernel printer devices match %q", glob)
		}
		sort.Strings(paths)

		return paths[0], nil
	}
	if numberedName(address, "lp") {
		return filepath.Join(filepath.Dir(glob), address), nil
	}

	return address, nil
}

func discoverKernelDevices(ctx context.Context, glob string) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("glob kernel devices: %w", err)
	}
	sort.Strings(paths)

	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, Device{Kind: KindKernel, Address: "file://" + p})
	}

	return devices, nil
}

func (t *KernelTransport) Name() string {
	return string(KindKernel)
}

func (t *KernelTransport) Path() string {
	return t.path
}

// DeviceKey is the cleaned device path, shared by the usb transport resolving to the same node.
func (t *KernelTransport) DeviceKey() string {
	return filepath.Clean(t.path)
}

func (t *KernelTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.path == "" {
		return errors.New("kernel device path is empty")
	}

	dev, err := openKernelDevice(t.path)
	if err != nil {
		transportLogger(KindKernel, "path", t.path).Warn("open failed", "error", err)

		return fmt.Errorf("open %q: %w", t.path, err)
	}
	t.dev = dev

	return nil
}

func (t *KernelTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil
	}
	err := t.dev.Close()
	t.dev = nil

	return err
}

func (t *KernelTransport) Write(ctx context.Context, payload []byte) error {
	dev, err := t.current()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := writeFull(ctx, dev, payload); err != nil {
		return fmt.Errorf("write %q: %w", t.path, err)
	}

	return nil
}

func (t *KernelTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	dev, err := t.current()
	if err != nil {
		return nil, err
	}

	timeout := t.readTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = max(left, 0)
		}
	}

	buf := make([]byte, frameReadSize)
	n, err := dev.ReadTimeout(buf, timeout)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", t.path, err)
	}

	return buf[:n], nil
}

func (t *KernelTransport) current() (kernelDevice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil, ErrNotConnected
	}

	return t.dev, nil
}
