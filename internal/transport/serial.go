package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialTransport talks to printers exposed as serial ports (RS-232 models, Bluetooth SPP).
type SerialTransport struct {
	portName    string
	baudRate    int
	readTimeout time.Duration

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialTransport(portName string, baudRate int, readTimeout time.Duration) *SerialTransport {
	if readTimeout <= 0 {
		readTimeout = defaultSerialReadTimeout
	}

	return &SerialTransport{
		portName:    portName,
		baudRate:    baudRate,
		readTimeout: readTimeout,
	}
}

func serialBackend(opts Options) Backend {
	return Backend{
		Kind:     KindSerial,
		Readback: true,
		Discover: discoverSerialPorts,
		New: func(address string) (Transport, error) {
			portName := strings.TrimPrefix(strings.TrimSpace(address), "serial://")
			if portName == "" {
				ports, err := serial.GetPortsList()
				if err != nil {
					return nil, fmt.Errorf("list serial ports: %w", err)
				}
				if len(ports) == 0 {
					return nil, errors.New("no serial ports found")
				}
				portName = ports[0]
			}

			return NewSerialTransport(portName, opts.SerialBaud, opts.SerialReadTimeout), nil
		},
	}
}

func discoverSerialPorts(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		transportLogger(KindSerial).Debug("detailed port list failed, falling back", "error", err)
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("list serial ports: %w", listErr)
		}
		devices := make([]Device, 0, len(names))
		for _, name := range names {
			devices = append(devices, Device{Kind: KindSerial, Address: "serial://" + name})
		}

		return devices, nil
	}

	devices := make([]Device, 0, len(details))
	for _, d := range details {
		dev := Device{Kind: KindSerial, Address: "serial://" + d.Name}
		if d.IsUSB {
			dev.VendorID = strings.ToLower(d.VID)
			dev.ProductID = strings.ToLower(d.PID)
			dev.Serial = d.SerialNumber
			dev.Description = d.Product
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

func (t *SerialTransport) Name() string {
	return string(KindSerial)
}

func (t *SerialTransport) PortName() string {
	return t.portName
}

func (t *SerialTransport) DeviceKey() string {
	return t.portName
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger(KindSerial, "port", t.portName)

	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		logger.Warn("open failed", "error", err)

		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.port = port
	logger.Debug("opened", "baud", t.baudRate)

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil

	return err
}

// ReadFrame returns whatever arrived within the port read timeout, possibly nothing.
func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, frameReadSize)
	n, err := port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read serial port: %w", err)
	}

	return buf[:n], nil
}

func (t *SerialTransport) Write(ctx context.Context, payload []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFull(ctx, port, payload); err != nil {
		return fmt.Errorf("write serial port: %w", err)
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("drain serial port: %w", err)
	}

	return nil
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}

	return t.port, nil
}
