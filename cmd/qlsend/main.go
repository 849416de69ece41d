package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/qlsend/internal/app"
	"github.com/skobkin/qlsend/internal/bus"
	"github.com/skobkin/qlsend/internal/config"
	"github.com/skobkin/qlsend/internal/events"
	"github.com/skobkin/qlsend/internal/persistence"
	"github.com/skobkin/qlsend/internal/platform"
	"github.com/skobkin/qlsend/internal/printer"
	"github.com/skobkin/qlsend/internal/transport"
)

const lockRetry = 100 * time.Millisecond

var initRuntime = app.Initialize

type options struct {
	configFile   string
	printer      string
	backend      string
	nonBlocking  bool
	timeout      time.Duration
	discover     bool
	status       bool
	history      int
	clearHistory bool
	saveConfig   bool
	metricsFile  string
	progress     bool
	logLevel     string
	version      bool
	input        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("qlsend failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet(app.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "config file (default: user config dir)")
	fs.StringVar(&opts.printer, "printer", "", "printer address, e.g. /dev/usb/lp0, usb://0x04f9:0x2042, tcp://192.168.0.23:9100")
	fs.StringVar(&opts.backend, "backend", "", "transport: linux_kernel, usb, network, serial (guessed from -printer when empty)")
	fs.BoolVar(&opts.nonBlocking, "non-blocking", false, "return right after sending instead of waiting for the printer")
	fs.DurationVar(&opts.timeout, "timeout", 0, "how long to wait for status frames (default from config)")
	fs.BoolVar(&opts.discover, "discover", false, "list reachable printers and exit")
	fs.BoolVar(&opts.status, "status", false, "query the printer status and exit")
	fs.IntVar(&opts.history, "history", 0, "print the N most recent jobs and exit")
	fs.BoolVar(&opts.clearHistory, "clear-history", false, "delete the job history and exit")
	fs.BoolVar(&opts.saveConfig, "save-config", false, "write the effective config (file plus flags) back to the config file and exit")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus textfile metrics after the job")
	fs.BoolVar(&opts.progress, "progress", false, "stream status frames to stderr while waiting")
	fs.StringVar(&opts.logLevel, "log-level", "", "override log level: debug, info, warn, error")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch fs.NArg() {
	case 0:
		opts.input = "-"
	case 1:
		opts.input = fs.Arg(0)
	default:
		return options{}, fmt.Errorf("expected at most one instructions file, got %d", fs.NArg())
	}
	if opts.history < 0 {
		return options{}, fmt.Errorf("-history must not be negative")
	}

	return opts, nil
}

func (o options) apply(cfg *config.AppConfig) {
	if strings.TrimSpace(o.printer) != "" {
		cfg.Printer.Address = strings.TrimSpace(o.printer)
	}
	if o.backend != "" {
		cfg.Printer.Transport = transport.Kind(o.backend)
	}
	if o.nonBlocking {
		cfg.Printer.NonBlocking = true
	}
	if o.timeout > 0 {
		cfg.Printer.Timeout = o.timeout
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.version {
		_, err := fmt.Fprintf(stdout, "%s %s\n", app.Name, app.BuildVersionWithDate())

		return err
	}

	rt, err := initRuntime(ctx, app.Options{
		ConfigFile: opts.configFile,
		Console:    stderr,
		Override:   opts.apply,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()
	logger := rt.LogManager.Logger("cli")
	pc := rt.Config.Printer

	switch {
	case opts.discover:
		var devices []transport.Device
		if pc.Transport == "" {
			devices, err = rt.Printer.DiscoverAll(ctx)
		} else {
			devices, err = rt.Printer.Discover(ctx, pc.Transport)
		}
		if err != nil {
			return err
		}

		return writeJSON(stdout, devices)
	case opts.status:
		st, err := rt.Printer.QueryStatus(ctx, pc.Address, pc.Transport, pc.Timeout)
		if err != nil {
			return err
		}

		return writeJSON(stdout, st)
	case opts.history > 0:
		if rt.JobRepo == nil {
			return errors.New("job history is disabled in config")
		}
		jobs, err := rt.JobRepo.ListRecent(ctx, opts.history)
		if err != nil {
			return err
		}

		return writeJSON(stdout, jobs)
	case opts.clearHistory:
		if rt.DB == nil {
			return errors.New("job history is disabled in config")
		}
		if err := persistence.ClearHistory(ctx, rt.DB); err != nil {
			return err
		}
		logger.Info("job history cleared")

		return nil
	case opts.saveConfig:
		if err := config.Save(rt.Paths.ConfigFile, rt.Config); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout, rt.Paths.ConfigFile)

		return err
	}

	instructions, err := readInstructions(opts.input, stdin)
	if err != nil {
		return err
	}

	deviceKey, err := rt.Printer.DeviceKey(pc.Transport, pc.Address)
	if err != nil {
		return err
	}
	lock, err := lockDevice(ctx, logger, deviceKey, pc.Address, pc.Timeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release device lock", "error", err)
		}
	}()

	if opts.progress {
		sub := rt.Bus.Subscribe(events.TopicStatusFrame, events.TopicMalformedFrame)
		done := make(chan struct{})
		go streamProgress(sub, stderr, done)
		defer func() {
			rt.Bus.Unsubscribe(sub)
			<-done
		}()
	}

	outcome, err := rt.Printer.Send(ctx, instructions, printer.SendOptions{
		Address:     pc.Address,
		Transport:   pc.Transport,
		NonBlocking: pc.NonBlocking,
		Timeout:     pc.Timeout,
	})
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := rt.Metrics.WriteTextfile(opts.metricsFile); err != nil {
			logger.Warn("write metrics", "error", err)
		}
	}

	return writeJSON(stdout, outcome)
}

func readInstructions(input string, stdin io.Reader) ([]byte, error) {
	if input == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read instructions from stdin: %w", err)
		}
		if len(raw) == 0 {
			return nil, errors.New("no instructions on stdin")
		}

		return raw, nil
	}

	// #nosec G304 -- the instructions file is chosen by the user on the command line.
	raw, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read instructions: %w", err)
	}

	return raw, nil
}

// lockDevice serialises jobs for the same printer across processes.
func lockDevice(ctx context.Context, logger *slog.Logger, deviceKey, address string, wait time.Duration) (platform.DeviceLock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	lock, err := platform.WaitDeviceLock(lockCtx, app.Name, deviceKey, lockRetry)
	if errors.Is(err, platform.ErrDeviceLockUnsupported) {
		logger.Debug("device locking unsupported, continuing without it")

		return noopLock{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock printer %q: %w", address, err)
	}

	return lock, nil
}

type noopLock struct{}

func (noopLock) Release() error { return nil }

type progressLine struct {
	Elapsed string `json:"elapsed"`
	Status  any    `json:"status,omitempty"`
	Frame   string `json:"frame"`
	Error   string `json:"error,omitempty"`
}

func streamProgress(sub bus.Subscription, w io.Writer, done chan<- struct{}) {
	defer close(done)

	enc := json.NewEncoder(w)
	for raw := range sub {
		var line progressLine
		switch ev := raw.(type) {
		case events.StatusFrame:
			line = progressLine{Elapsed: ev.Elapsed.String(), Status: ev.Status, Frame: ev.Hex}
		case events.MalformedFrame:
			line = progressLine{Elapsed: ev.Elapsed.String(), Frame: ev.Hex, Error: ev.Err}
		default:
			continue
		}
		_ = enc.Encode(line)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}
