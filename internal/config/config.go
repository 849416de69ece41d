package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/qlsend/internal/transport"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 5 * time.Millisecond
	DefaultHistoryKeep  = 500
)

// PrinterConfig holds the job defaults applied when the command line does not override them.
type PrinterConfig struct {
	Address          string         `yaml:"address"`
	Transport        transport.Kind `yaml:"transport"`
	DefaultTransport transport.Kind `yaml:"default_transport"`
	Timeout          time.Duration  `yaml:"timeout"`
	PollInterval     time.Duration  `yaml:"poll_interval"`
	NonBlocking      bool           `yaml:"non_blocking"`
}

type NetworkConfig struct {
	Port        int           `yaml:"port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type SerialConfig struct {
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type KernelConfig struct {
	DeviceGlob  string        `yaml:"device_glob"`
	SysfsRoot   string        `yaml:"sysfs_root"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	LogToFile bool   `yaml:"log_to_file"`
}

// HistoryConfig controls the sqlite job journal.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Keep is the number of newest jobs retained; 0 keeps everything.
	Keep int `yaml:"keep"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Printer PrinterConfig `yaml:"printer"`
	Network NetworkConfig `yaml:"network"`
	Serial  SerialConfig  `yaml:"serial"`
	Kernel  KernelConfig  `yaml:"kernel"`
	Logging LoggingConfig `yaml:"logging"`
	History HistoryConfig `yaml:"history"`
}

func Default() AppConfig {
	return AppConfig{
		Printer: PrinterConfig{
			DefaultTransport: transport.KindKernel,
			Timeout:          DefaultTimeout,
			PollInterval:     DefaultPollInterval,
		},
		Network: NetworkConfig{
			Port:        transport.DefaultNetworkPort,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 10 * time.Millisecond,
		},
		Serial: SerialConfig{
			Baud:        transport.DefaultSerialBaud,
			ReadTimeout: 10 * time.Millisecond,
		},
		Kernel: KernelConfig{
			DeviceGlob:  "/dev/usb/lp*",
			SysfsRoot:   "/sys",
			ReadTimeout: 10 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			Enabled: true,
			Keep:    DefaultHistoryKeep,
		},
	}
}

// Load reads a YAML (or JSON) config file. A missing file yields defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line or the user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config yaml: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	def := Default()
	if c.Printer.DefaultTransport == "" {
		c.Printer.DefaultTransport = def.Printer.DefaultTransport
	}
	if c.Printer.Timeout <= 0 {
		c.Printer.Timeout = def.Printer.Timeout
	}
	if c.Printer.PollInterval <= 0 {
		c.Printer.PollInterval = def.Printer.PollInterval
	}
	if c.Network.Port <= 0 {
		c.Network.Port = def.Network.Port
	}
	if c.Network.DialTimeout <= 0 {
		c.Network.DialTimeout = def.Network.DialTimeout
	}
	if c.Network.ReadTimeout <= 0 {
		c.Network.ReadTimeout = def.Network.ReadTimeout
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.ReadTimeout <= 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Kernel.DeviceGlob == "" {
		c.Kernel.DeviceGlob = def.Kernel.DeviceGlob
	}
	if c.Kernel.SysfsRoot == "" {
		c.Kernel.SysfsRoot = def.Kernel.SysfsRoot
	}
	if c.Kernel.ReadTimeout <= 0 {
		c.Kernel.ReadTimeout = def.Kernel.ReadTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	c.Logging.Format = normalizeLogFormat(c.Logging.Format)
	if c.History.Keep < 0 {
		c.History.Keep = 0
	}
}

func normalizeLogFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return "json"
	default:
		return "text"
	}
}

// Validate checks the settings the registry cannot. An explicit printer.transport is
// left to the registry so that an unknown kind surfaces as transport.ErrUnknownTransport.
func (c AppConfig) Validate() error {
	if !knownTransport(c.Printer.DefaultTransport) {
		return fmt.Errorf("unknown default transport: %s", c.Printer.DefaultTransport)
	}
	if c.Printer.Timeout <= 0 {
		return errors.New("printer timeout must be positive")
	}
	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		return fmt.Errorf("invalid network port: %d", c.Network.Port)
	}
	if c.Serial.Baud <= 0 {
		return errors.New("serial baud must be positive")
	}

	return nil
}

func knownTransport(kind transport.Kind) bool {
	switch kind {
	case transport.KindKernel, transport.KindUSB, transport.KindNetwork, transport.KindSerial:
		return true
	default:
		return false
	}
}

// TransportOptions maps the transport sections onto registry options.
func (c AppConfig) TransportOptions() transport.Options {
	return transport.Options{
		NetworkPort:        c.Network.Port,
		DialTimeout:        c.Network.DialTimeout,
		NetworkReadTimeout: c.Network.ReadTimeout,
		SerialBaud:         c.Serial.Baud,
		SerialReadTimeout:  c.Serial.ReadTimeout,
		KernelDeviceGlob:   c.Kernel.DeviceGlob,
		KernelReadTimeout:  c.Kernel.ReadTimeout,
		SysfsRoot:          c.Kernel.SysfsRoot,
	}
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
