package transport

import (
	"context"
	"errors"
	"fmt"
)

// Kind names a transport implementation, e.g. "network" or "linux_kernel".
type Kind string

const (
	KindKernel  Kind = "linux_kernel"
	KindUSB     Kind = "usb"
	KindNetwork Kind = "network"
	KindSerial  Kind = "serial"
)

// ErrUnknownTransport is returned when a transport kind has no registered backend.
var ErrUnknownTransport = errors.New("unknown transport")

// ErrNotConnected is returned by I/O methods called before Connect or after Close.
var ErrNotConnected = errors.New("transport is not connected")

// Transport is one open (or openable) channel to a single printer.
//
// ReadFrame returns an empty slice and a nil error when the device has nothing to report yet.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	Write(ctx context.Context, payload []byte) error
	ReadFrame(ctx context.Context) ([]byte, error)
}

// DeviceKeyer is implemented by transports that can name the physical device they reach
// without connecting to it. Different spellings of one device yield the same key.
type DeviceKeyer interface {
	DeviceKey() string
}

// Device describes a printer found by discovery. Address can be passed back as a send address.
type Device struct {
	Kind        Kind   `json:"kind"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
	VendorID    string `json:"vendor_id,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	Serial      string `json:"serial,omitempty"`
}

// Error is a hard I/O failure while opening or writing to a transport.
type Error struct {
	Op        string
	Transport Kind
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps err into an *Error unless it already is one.
func WrapError(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}

	var trErr *Error
	if errors.As(err, &trErr) {
		return err
	}

	return &Error{Op: op, Transport: kind, Err: err}
}
