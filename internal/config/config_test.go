package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/skobkin/qlsend/internal/transport"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	want := Default()
	want.History = HistoryConfig{}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected defaults (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
printer:
  address: tcp://192.168.1.50
  timeout: 15s
  non_blocking: true
serial:
  baud: 115200
logging:
  level: debug
  format: JSON
history:
  enabled: false
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Printer.Address != "tcp://192.168.1.50" || !cfg.Printer.NonBlocking {
		t.Fatalf("unexpected printer section: %+v", cfg.Printer)
	}
	if cfg.Printer.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", cfg.Printer.Timeout)
	}
	if cfg.Printer.PollInterval != DefaultPollInterval {
		t.Fatalf("expected default poll interval, got %v", cfg.Printer.PollInterval)
	}
	if cfg.Serial.Baud != 115200 {
		t.Fatalf("expected baud 115200, got %d", cfg.Serial.Baud)
	}
	if cfg.Network.Port != transport.DefaultNetworkPort {
		t.Fatalf("expected default network port, got %d", cfg.Network.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
	if cfg.History.Enabled {
		t.Fatal("expected history to be disabled")
	}
}

func TestLoadJSONDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"printer": {"transport": "usb", "address": "usb://0x04f9:0x209b"}, "logging": {"level": "warn"}}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Printer.Transport != transport.KindUSB || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("printer: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "explicit transport left to registry", mutate: func(c *AppConfig) { c.Printer.Transport = "bluetooth" }},
		{name: "unknown default transport", mutate: func(c *AppConfig) { c.Printer.DefaultTransport = "lpd" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *AppConfig) { c.Printer.Timeout = 0 }, wantErr: true},
		{name: "port out of range", mutate: func(c *AppConfig) { c.Network.Port = 70000 }, wantErr: true},
		{name: "zero baud", mutate: func(c *AppConfig) { c.Serial.Baud = 0 }, wantErr: true},
		{name: "explicit network", mutate: func(c *AppConfig) { c.Printer.Transport = transport.KindNetwork }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Printer.Address = "/dev/usb/lp1"
	cfg.Printer.Timeout = 20 * time.Second
	cfg.History.Keep = 10

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, stat err: %v", err)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.Serial.Baud = -1
	if err := Save(filepath.Join(t.TempDir(), "config.yaml"), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTransportOptions(t *testing.T) {
	got := Default().TransportOptions()
	want := transport.Options{
		NetworkPort:        9100,
		DialTimeout:        5 * time.Second,
		NetworkReadTimeout: 10 * time.Millisecond,
		SerialBaud:         9600,
		SerialReadTimeout:  10 * time.Millisecond,
		KernelDeviceGlob:   "/dev/usb/lp*",
		KernelReadTimeout:  10 * time.Millisecond,
		SysfsRoot:          "/sys",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected transport options (-want +got):\n%s", diff)
	}
}
