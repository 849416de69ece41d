package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeUSBPrinterFixture lays out <root>/class/usbmisc/<node>/device -> interface dir, with the
// descriptor files in the interface's parent the way the kernel exposes them.
func writeUSBPrinterFixture(t *testing.T, root, node, busPath string, attrs map[string]string) {
	t.Helper()

	devDir := filepath.Join(root, "devices", busPath)
	ifaceDir := filepath.Join(devDir, busPath+":1.0")
	if err := os.MkdirAll(ifaceDir, 0o750); err != nil {
		t.Fatalf("create interface dir: %v", err)
	}
	for name, value := range attrs {
		if err := os.WriteFile(filepath.Join(devDir, name), []byte(value+"\n"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	classDir := filepath.Join(root, "class", "usbmisc", node)
	if err := os.MkdirAll(classDir, 0o750); err != nil {
		t.Fatalf("create class dir: %v", err)
	}
	if err := os.Symlink(ifaceDir, filepath.Join(classDir, "device")); err != nil {
		t.Fatalf("symlink device: %v", err)
	}
}

func TestParseUSBIdentifier(t *testing.T) {
	tests := []struct {
		address string
		want    usbIdentifier
		wantErr bool
	}{
		{address: "", want: usbIdentifier{vendor: BrotherVendorID}},
		{address: "usb://0x04f9:0x209b", want: usbIdentifier{vendor: 0x04f9, product: 0x209b}},
		{address: "0x04f9:0x2042/000J5Z123456", want: usbIdentifier{vendor: 0x04f9, product: 0x2042, serial: "000J5Z123456"}},
		{address: "usb://04f9", wantErr: true},
		{address: "usb://0xzz:0x2042", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseUSBIdentifier(tc.address)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.address)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.address, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %+v, want %+v", tc.address, got, tc.want)
		}
	}
}

func TestUSBBackendDiscoverAndOpen(t *testing.T) {
	root := t.TempDir()
	writeUSBPrinterFixture(t, root, "lp0", "1-1", map[string]string{
		"idVendor": "04f9", "idProduct": "209b", "serial": "000G0Z714634",
		"product": "QL-800", "manufacturer": "Brother",
	})
	writeUSBPrinterFixture(t, root, "lp1", "1-2", map[string]string{
		"idVendor": "03f0", "idProduct": "0517", "product": "LaserJet",
	})

	opts := Options{SysfsRoot: root, KernelDeviceGlob: "/dev/usb/lp*"}.withDefaults()
	backend := usbBackend(opts)

	devices, err := backend.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []Device{{
		Kind:        KindUSB,
		Address:     "usb://0x04f9:0x209b/000G0Z714634",
		Description: "Brother QL-800",
		VendorID:    "0x04f9",
		ProductID:   "0x209b",
		Serial:      "000G0Z714634",
	}}
	if diff := cmp.Diff(want, devices); diff != "" {
		t.Fatalf("unexpected devices (-want +got):\n%s", diff)
	}

	tr, err := backend.New("usb://0x04f9:0x209b")
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	usbTr, ok := tr.(*USBTransport)
	if !ok {
		t.Fatalf("expected *USBTransport, got %T", tr)
	}
	if usbTr.Name() != string(KindUSB) {
		t.Fatalf("unexpected name %q", usbTr.Name())
	}
	if usbTr.Path() != "/dev/usb/lp0" {
		t.Fatalf("unexpected device path %q", usbTr.Path())
	}
	kernelTr, err := kernelBackend(opts).New("file:///dev/usb/lp0")
	if err != nil {
		t.Fatalf("new kernel transport: %v", err)
	}
	if got, want := usbTr.DeviceKey(), kernelTr.(DeviceKeyer).DeviceKey(); got != want {
		t.Fatalf("usb key %q differs from kernel key %q for the same node", got, want)
	}

	if _, err := backend.New("usb://0x04f9:0x2042"); err == nil {
		t.Fatalf("expected error for unmatched product id")
	}
}
