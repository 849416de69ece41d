package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// BrotherVendorID is the USB vendor id of Brother Industries.
const BrotherVendorID = 0x04f9

// USBTransport addresses a USB printer by vendor/product id and reaches it through the
// usblp kernel device the id resolves to.
type USBTransport struct {
	*KernelTransport
}

func (t *USBTransport) Name() string {
	return string(KindUSB)
}

type usbIdentifier struct {
	vendor  uint16
	product uint16
	serial  string
}

type usbPrinter struct {
	node         string
	vendor       uint16
	product      uint16
	serial       string
	productName  string
	manufacturer string
}

func (p usbPrinter) address() string {
	addr := fmt.Sprintf("usb://0x%04x:0x%04x", p.vendor, p.product)
	if p.serial != "" {
		addr += "/" + p.serial
	}

	return addr
}

func (p usbPrinter) matches(id usbIdentifier) bool {
	if id.vendor != 0 && id.vendor != p.vendor {
		return false
	}
	if id.product != 0 && id.product != p.product {
		return false
	}

	return id.serial == "" || id.serial == p.serial
}

func usbBackend(opts Options) Backend {
	devDir := filepath.Dir(opts.KernelDeviceGlob)

	return Backend{
		Kind:     KindUSB,
		Readback: true,
		Discover: func(ctx context.Context) ([]Device, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			printers, err := scanUSBPrinters(opts.SysfsRoot)
			if err != nil {
				return nil, err
			}

			devices := make([]Device, 0, len(printers))
			for _, p := range printers {
				if p.vendor != BrotherVendorID {
					continue
				}
				devices = append(devices, Device{
					Kind:        KindUSB,
					Address:     p.address(),
					Description: strings.TrimSpace(p.manufacturer + " " + p.productName),
					VendorID:    fmt.Sprintf("0x%04x", p.vendor),
					ProductID:   fmt.Sprintf("0x%04x", p.product),
					Serial:      p.serial,
				})
			}

			return devices, nil
		},
		New: func(address string) (Transport, error) {
			id, err := parseUSBIdentifier(address)
			if err != nil {
				return nil, err
			}
			printers, err := scanUSBPrinters(opts.SysfsRoot)
			if err != nil {
				return nil, err
			}
			for _, p := range printers {
				if p.matches(id) {
					path := filepath.Join(devDir, p.node)
					transportLogger(KindUSB, "address", p.address()).Debug("resolved usb printer", "path", path)

					return &USBTransport{KernelTransport: NewKernelTransport(path, opts.KernelReadTimeout)}, nil
				}
			}

			return nil, fmt.Errorf("no usb printer matches %q", address)
		},
	}
}

// parseUSBIdentifier parses usb://0xVVVV:0xPPPP[/SERIAL]. An empty address matches any Brother printer.
func parseUSBIdentifier(address string) (usbIdentifier, error) {
	address = strings.TrimPrefix(strings.TrimSpace(address), "usb://")
	if address == "" {
		return usbIdentifier{vendor: BrotherVendorID}, nil
	}

	ids, serial, _ := strings.Cut(address, "/")
	rawVendor, rawProduct, ok := strings.Cut(ids, ":")
	if !ok {
		return usbIdentifier{}, fmt.Errorf("invalid usb identifier %q: want vendor:product", address)
	}
	vendor, err := strconv.ParseUint(rawVendor, 0, 16)
	if err != nil {
		return usbIdentifier{}, fmt.Errorf("invalid usb vendor id %q: %w", rawVendor, err)
	}
	product, err := strconv.ParseUint(rawProduct, 0, 16)
	if err != nil {
		return usbIdentifier{}, fmt.Errorf("invalid usb product id %q: %w", rawProduct, err)
	}

	return usbIdentifier{vendor: uint16(vendor), product: uint16(product), serial: serial}, nil
}

// scanUSBPrinters reads usblp devices from <sysfs>/class/usbmisc. The device link of each
// entry points at the USB interface; its parent holds the device descriptors.
func scanUSBPrinters(sysfsRoot string) ([]usbPrinter, error) {
	entries, err := filepath.Glob(filepath.Join(sysfsRoot, "class", "usbmisc", "lp*"))
	if err != nil {
		return nil, fmt.Errorf("glob usbmisc: %w", err)
	}
	sort.Strings(entries)

	printers := make([]usbPrinter, 0, len(entries))
	for _, entry := range entries {
		iface, err := filepath.EvalSymlinks(filepath.Join(entry, "device"))
		if err != nil {
			continue
		}
		devDir := filepath.Dir(iface)

		vendor, err := readSysfsHex(devDir, "idVendor")
		if err != nil {
			continue
		}
		product, err := readSysfsHex(devDir, "idProduct")
		if err != nil {
			continue
		}
		printers = append(printers, usbPrinter{
			node:         filepath.Base(entry),
			vendor:       vendor,
			product:      product,
			serial:       readSysfsString(devDir, "serial"),
			productName:  readSysfsString(devDir, "product"),
			manufacturer: readSysfsString(devDir, "manufacturer"),
		})
	}

	return printers, nil
}

func readSysfsString(dir, name string) string {
	// #nosec G304 -- path is composed from the configured sysfs root.
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(raw))
}

func readSysfsHex(dir, name string) (uint16, error) {
	raw := readSysfsString(dir, name)
	if raw == "" {
		return 0, errors.New("missing " + name)
	}
	v, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}

	return uint16(v), nil
}
