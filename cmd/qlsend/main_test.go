package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/qlsend/internal/app"
	"github.com/skobkin/qlsend/internal/bus"
	"github.com/skobkin/qlsend/internal/config"
	"github.com/skobkin/qlsend/internal/events"
	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-printer", " tcp://10.0.0.5 ", "-timeout", "3s", "-non-blocking", "label.bin"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.input != "label.bin" || !opts.nonBlocking || opts.timeout != 3*time.Second {
		t.Fatalf("unexpected options: %+v", opts)
	}

	cfg := config.Default()
	opts.apply(&cfg)
	if cfg.Printer.Address != "tcp://10.0.0.5" || !cfg.Printer.NonBlocking || cfg.Printer.Timeout != 3*time.Second {
		t.Fatalf("flags not applied: %+v", cfg.Printer)
	}
	if cfg.Printer.Transport != "" {
		t.Fatalf("expected transport to stay unset, got %q", cfg.Printer.Transport)
	}
}

func TestParseFlagsDefaultsToStdin(t *testing.T) {
	opts, err := parseFlags(nil, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.input != "-" {
		t.Fatalf("expected stdin input, got %q", opts.input)
	}

	cfg := config.Default()
	opts.apply(&cfg)
	if cfg.Printer.Timeout != config.DefaultTimeout {
		t.Fatalf("expected config timeout to be kept, got %v", cfg.Printer.Timeout)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "two inputs", args: []string{"a.bin", "b.bin"}},
		{name: "negative history", args: []string{"-history", "-1"}},
		{name: "unknown flag", args: []string{"-model", "QL-700"}},
	}
	for _, tc := range tests {
		if _, err := parseFlags(tc.args, &bytes.Buffer{}); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	if _, err := parseFlags([]string{"-h"}, &bytes.Buffer{}); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestReadInstructions(t *testing.T) {
	raw, err := readInstructions("-", strings.NewReader("\x1b@"))
	if err != nil || string(raw) != "\x1b@" {
		t.Fatalf("read stdin: %q, %v", raw, err)
	}
	if _, err := readInstructions("-", strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty stdin")
	}

	path := filepath.Join(t.TempDir(), "label.bin")
	if err := os.WriteFile(path, []byte{0x00, 0x1b, 0x40}, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	raw, err = readInstructions(path, nil)
	if err != nil || len(raw) != 3 {
		t.Fatalf("read file: %v, %v", raw, err)
	}
	if _, err := readInstructions(filepath.Join(t.TempDir(), "missing.bin"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStreamProgress(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	sub := b.Subscribe(events.TopicStatusFrame, events.TopicMalformedFrame)

	var out bytes.Buffer
	done := make(chan struct{})
	go streamProgress(sub, &out, done)

	b.Publish(events.TopicMalformedFrame, events.MalformedFrame{Elapsed: time.Millisecond, Hex: "01 02", Err: "short frame"})
	b.Publish(events.TopicStatusFrame, events.StatusFrame{
		Elapsed: 2 * time.Millisecond,
		Status:  status.Status{StatusType: status.TypePrintingCompleted},
		Hex:     "80 20 42",
	})
	b.Unsubscribe(sub)
	<-done

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 progress lines, got %q", out.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	if first["error"] != "short frame" || first["frame"] != "01 02" {
		t.Fatalf("unexpected malformed line: %v", first)
	}
	st, ok := second["status"].(map[string]any)
	if !ok || st["status_type"] != string(status.TypePrintingCompleted) {
		t.Fatalf("unexpected status line: %v", second)
	}
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(testContext(t), []string{"-version"}, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "qlsend ") {
		t.Fatalf("unexpected version output %q", stdout.String())
	}
}

type scriptedTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	written []byte
}

func (s *scriptedTransport) Name() string { return "fake" }

func (s *scriptedTransport) Connect(context.Context) error { return nil }

func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) DeviceKey() string { return "fake0" }

func (s *scriptedTransport) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, payload...)

	return nil
}

func (s *scriptedTransport) ReadFrame(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, nil
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]

	return frame, nil
}

func statusFrame(statusType, phaseType byte) []byte {
	frame := make([]byte, status.FrameSize)
	frame[0], frame[1], frame[2], frame[3] = 0x80, 0x20, 0x42, 0x34
	frame[4] = 0x38
	frame[10] = 62
	frame[11] = 0x0A
	frame[18] = statusType
	frame[19] = phaseType

	return frame
}

// isolateRun points config, history and device locks at temp dirs.
func isolateRun(t *testing.T) {
	t.Helper()

	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
}

func useRegistry(t *testing.T, registry *transport.Registry) {
	t.Helper()

	orig := initRuntime
	initRuntime = func(ctx context.Context, opts app.Options) (*app.Runtime, error) {
		opts.Registry = registry

		return orig(ctx, opts)
	}
	t.Cleanup(func() { initRuntime = orig })
}

func runJSON(t *testing.T, args []string, stdin string, v any) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	if err := run(testContext(t), args, strings.NewReader(stdin), &stdout, &stderr); err != nil {
		t.Fatalf("run %v: %v\nstderr: %s", args, err, stderr.String())
	}
	if err := json.Unmarshal(stdout.Bytes(), v); err != nil {
		t.Fatalf("decode output of %v: %v\n%s", args, err, stdout.String())
	}
}

func TestRunSendsAndRecordsHistory(t *testing.T) {
	isolateRun(t)
	tr := &scriptedTransport{frames: [][]byte{statusFrame(0x01, 0x01), statusFrame(0x06, 0x00)}}
	useRegistry(t, transport.NewRegistry(transport.Backend{
		Kind:     "fake",
		Readback: true,
		New: func(string) (transport.Transport, error) {
			return tr, nil
		},
	}))

	var outcome map[string]any
	runJSON(t, []string{"-backend", "fake", "-printer", "fake0"}, "\x1b@", &outcome)
	if outcome["outcome"] != "printed" || outcome["did_print"] != true || outcome["ready_for_next_job"] != true {
		t.Fatalf("unexpected outcome: %v", outcome)
	}
	if string(tr.written) != "\x1b@" {
		t.Fatalf("unexpected payload %q", tr.written)
	}

	var jobs []map[string]any
	runJSON(t, []string{"-history", "5"}, "", &jobs)
	if len(jobs) != 1 || jobs[0]["job_id"] != outcome["job_id"] || jobs[0]["outcome"] != "printed" {
		t.Fatalf("unexpected history: %v", jobs)
	}

	var stdout bytes.Buffer
	if err := run(testContext(t), []string{"-clear-history"}, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("clear history: %v", err)
	}
	jobs = nil
	runJSON(t, []string{"-history", "5"}, "", &jobs)
	if len(jobs) != 0 {
		t.Fatalf("expected empty history after clearing, got %v", jobs)
	}
}

func TestRunUnknownBackend(t *testing.T) {
	isolateRun(t)

	err := run(testContext(t), []string{"-backend", "bluetooth", "-non-blocking", "-"}, strings.NewReader("\x1b@"), &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.Is(err, transport.ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}

func TestRunSaveConfig(t *testing.T) {
	isolateRun(t)
	path := filepath.Join(t.TempDir(), "qlsend.yaml")

	var stdout bytes.Buffer
	args := []string{"-config", path, "-save-config", "-printer", "tcp://10.0.0.5", "-timeout", "3s"}
	if err := run(testContext(t), args, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != path {
		t.Fatalf("unexpected output %q", stdout.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if cfg.Printer.Address != "tcp://10.0.0.5" || cfg.Printer.Timeout != 3*time.Second {
		t.Fatalf("flags not persisted: %+v", cfg.Printer)
	}
}

// testContext mirrors testing.T.Context (Go 1.24+): the context is canceled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return ctx
}
