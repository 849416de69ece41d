package transport

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	DefaultNetworkPort        = 9100
	DefaultSerialBaud         = 9600
	defaultDialTimeout        = 5 * time.Second
	defaultSerialReadTimeout  = 10 * time.Millisecond
	defaultKernelReadTimeout  = 10 * time.Millisecond
	defaultKernelDeviceGlob   = "/dev/usb/lp*"
	defaultSysfsRoot          = "/sys"
	defaultNetworkReadTimeout = 10 * time.Millisecond
)

// Backend pairs the two capabilities a transport kind offers: enumerate and instantiate.
type Backend struct {
	Kind Kind
	// Readback reports whether the device can answer with status frames over this transport.
	Readback bool
	Discover func(ctx context.Context) ([]Device, error)
	New      func(address string) (Transport, error)
}

// Registry maps transport kinds to their backends.
type Registry struct {
	backends map[Kind]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[Kind]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Kind] = b
	}

	return r
}

// Options tunes the built-in backends. Zero values fall back to defaults.
type Options struct {
	NetworkPort        int
	DialTimeout        time.Duration
	NetworkReadTimeout time.Duration
	SerialBaud         int
	SerialReadTimeout  time.Duration
	KernelDeviceGlob   string
	KernelReadTimeout  time.Duration
	SysfsRoot          string
}

func (o Options) withDefaults() Options {
	if o.NetworkPort <= 0 {
		o.NetworkPort = DefaultNetworkPort
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.NetworkReadTimeout <= 0 {
		o.NetworkReadTimeout = defaultNetworkReadTimeout
	}
	if o.SerialBaud <= 0 {
		o.SerialBaud = DefaultSerialBaud
	}
	if o.SerialReadTimeout <= 0 {
		o.SerialReadTimeout = defaultSerialReadTimeout
	}
	if o.KernelDeviceGlob == "" {
		o.KernelDeviceGlob = defaultKernelDeviceGlob
	}
	if o.KernelReadTimeout <= 0 {
		o.KernelReadTimeout = defaultKernelReadTimeout
	}
	if o.SysfsRoot == "" {
		o.SysfsRoot = defaultSysfsRoot
	}

	return o
}

// DefaultRegistry wires every built-in transport kind.
func DefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()

	return NewRegistry(
		kernelBackend(opts),
		usbBackend(opts),
		networkBackend(opts),
		serialBackend(opts),
	)
}

// Lookup returns the backend for kind or an error wrapping ErrUnknownTransport.
func (r *Registry) Lookup(kind Kind) (Backend, error) {
	b, ok := r.backends[kind]
	if !ok {
		return Backend{}, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}

	return b, nil
}

func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}
