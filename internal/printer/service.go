package printer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skobkin/qlsend/internal/bus"
	"github.com/skobkin/qlsend/internal/events"
	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 5 * time.Millisecond
)

// Frame kinds reported to MetricsRecorder.ObserveFrame.
const (
	FrameDecoded   = "decoded"
	FrameMalformed = "malformed"
)

// Config is the process-wide send configuration, injected at construction.
type Config struct {
	// DefaultTransport is used when neither an explicit kind nor a recognisable address is given.
	DefaultTransport transport.Kind
	Timeout          time.Duration
	PollInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTransport == "" {
		c.DefaultTransport = transport.KindKernel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	return c
}

// SendOptions are the per-job parameters of Send.
type SendOptions struct {
	Address   string
	Transport transport.Kind
	// NonBlocking returns right after the write instead of waiting for status frames.
	NonBlocking bool
	// Timeout bounds status polling; zero uses Config.Timeout.
	Timeout time.Duration
}

// JobRepository stores finished jobs.
type JobRepository interface {
	Insert(ctx context.Context, o Outcome) error
}

type MetricsRecorder interface {
	ObserveFrame(kind string)
	ObserveJob(transport, result string, duration time.Duration)
}

type Option func(*Service)

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithHistory(repo JobRepository) Option {
	return func(s *Service) {
		s.history = repo
	}
}

// Service dispatches print jobs and monitors them until the printer confirms completion.
type Service struct {
	logger   *slog.Logger
	bus      bus.MessageBus
	registry *transport.Registry
	decoder  status.Decoder
	cfg      Config
	metrics  MetricsRecorder
	history  JobRepository

	newJobID func() string
	sleep    func(time.Duration)
}

func NewService(logger *slog.Logger, b bus.MessageBus, registry *transport.Registry, decoder status.Decoder, cfg Config, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = bus.Nop{}
	}
	if decoder == nil {
		decoder = status.BrotherQL{}
	}

	s := &Service{
		logger:   logger,
		bus:      b,
		registry: registry,
		decoder:  decoder,
		cfg:      cfg.withDefaults(),
		metrics:  nopMetrics{},
		newJobID: uuid.NewString,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

// ResolveTransport names the transport a job with these parameters would use.
func (s *Service) ResolveTransport(explicit transport.Kind, address string) transport.Kind {
	kind, _ := transport.Resolve(explicit, address, s.cfg.DefaultTransport)

	return kind
}

// DeviceKey names the physical device a job with these parameters would reach, so that
// callers can serialise jobs per printer. The transport is instantiated but never connected.
func (s *Service) DeviceKey(explicit transport.Kind, address string) (string, error) {
	kind := s.ResolveTransport(explicit, address)
	backend, err := s.registry.Lookup(kind)
	if err != nil {
		return "", err
	}
	tr, err := backend.New(address)
	if err != nil {
		return "", transport.WrapError("open", kind, err)
	}
	defer s.closeTransport(tr)

	if keyer, ok := tr.(transport.DeviceKeyer); ok {
		return string(kind) + "-" + keyer.DeviceKey(), nil
	}

	return string(kind) + "-" + address, nil
}

// Send writes instructions to the printer once and, when blocking and the transport supports
// readback, polls status frames until the print is confirmed and the printer is ready again,
// the printer reports an error, or the timeout elapses.
//
// Only failures to resolve, open or write the transport are returned as errors; in that case
// no Outcome is produced. Incomplete jobs are reported through the Outcome flags.
func (s *Service) Send(ctx context.Context, instructions []byte, opts SendOptions) (Outcome, error) {
	kind, fallback := transport.Resolve(opts.Transport, opts.Address, s.cfg.DefaultTransport)
	if fallback {
		s.logger.Info("no transport stated, selecting the default", "transport", kind, "address", opts.Address)
	}

	backend, err := s.registry.Lookup(kind)
	if err != nil {
		return Outcome{}, err
	}
	tr, err := s.open(ctx, backend, opts.Address)
	if err != nil {
		return Outcome{}, err
	}
	defer s.closeTransport(tr)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}

	out := Outcome{
		JobID:     s.newJobID(),
		Transport: kind,
		Address:   opts.Address,
		Result:    ResultUnknown,
		Bytes:     len(instructions),
	}
	logger := s.logger.With("job_id", out.JobID, "transport", kind)

	start := time.Now()
	out.StartedAt = start

	logger.Info("sending instructions to the printer", "bytes", len(instructions))
	if err := tr.Write(ctx, instructions); err != nil {
		logger.Error("write failed", "error", err)

		return Outcome{}, transport.WrapError("write", kind, err)
	}
	out.markSent()
	s.bus.Publish(events.TopicJobStarted, events.JobStarted{
		JobID:     out.JobID,
		Transport: kind,
		Address:   opts.Address,
		Bytes:     len(instructions),
		Blocking:  !opts.NonBlocking,
		Timestamp: start,
	})

	switch {
	case opts.NonBlocking:
		logger.Debug("non-blocking send, not waiting for completion")
	case !backend.Readback:
		logger.Debug("transport has no readback, not waiting for completion")
	default:
		s.poll(ctx, logger, tr, &out, start, timeout)
		logCompletion(logger, out)
	}

	out.FinishedAt = time.Now()
	s.finish(ctx, logger, out)

	return out, nil
}

func (s *Service) open(ctx context.Context, backend transport.Backend, address string) (transport.Transport, error) {
	tr, err := backend.New(address)
	if err != nil {
		return nil, transport.WrapError("open", backend.Kind, err)
	}
	if err := tr.Connect(ctx); err != nil {
		s.closeTransport(tr)

		return nil, transport.WrapError("open", backend.Kind, err)
	}

	return tr, nil
}

func (s *Service) closeTransport(tr transport.Transport) {
	if err := tr.Close(); err != nil {
		s.logger.Warn("close transport", "transport", tr.Name(), "error", err)
	}
}

// poll reads status frames until a terminal condition. Reads are detached from ctx
// cancellation and bounded by start+timeout only.
func (s *Service) poll(ctx context.Context, logger *slog.Logger, tr transport.Transport, out *Outcome, start time.Time, timeout time.Duration) {
	deadline := start.Add(timeout)
	readCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancel()

	for time.Now().Before(deadline) {
		frame, err := tr.ReadFrame(readCtx)
		if err != nil {
			logger.Debug("status read failed, retrying", "error", err)
			frame = nil
		}
		if len(frame) == 0 {
			s.sleep(s.cfg.PollInterval)
			continue
		}

		elapsed := time.Since(start)
		st, err := s.decoder.Decode(frame)
		if err != nil {
			out.MalformedFrames++
			s.metrics.ObserveFrame(FrameMalformed)
			logger.Error("couldn't understand printer response", "elapsed", elapsed, "frame", status.Hex(frame), "error", err)
			s.bus.Publish(events.TopicMalformedFrame, events.MalformedFrame{
				JobID: out.JobID, Elapsed: elapsed, Hex: status.Hex(frame), Err: err.Error(),
			})
			continue
		}

		s.metrics.ObserveFrame(FrameDecoded)
		logger.Debug("status frame", "elapsed", elapsed, "status", st.String())
		s.bus.Publish(events.TopicStatusFrame, events.StatusFrame{
			JobID: out.JobID, Elapsed: elapsed, Status: st, Hex: status.Hex(frame),
		})

		if out.apply(st) {
			if out.Result == ResultError {
				logger.Error("printer reported errors", "errors", st.Errors)
			}

			return
		}
	}
}

func logCompletion(logger *slog.Logger, out Outcome) {
	if out.Result == ResultError {
		return
	}
	if !out.DidPrint {
		logger.Warn("'printing completed' status not received")
	}
	if !out.ReadyForNextJob {
		logger.Warn("'waiting to receive' status not received")
	}
	if out.Completed() {
		logger.Info("printing was successful, waiting for the next job")
	} else {
		logger.Warn("printing potentially not successful")
	}
}

func (s *Service) finish(ctx context.Context, logger *slog.Logger, out Outcome) {
	s.metrics.ObserveJob(string(out.Transport), string(out.Result), out.Duration())
	if s.history != nil {
		if err := s.history.Insert(context.WithoutCancel(ctx), out); err != nil {
			logger.Warn("record job history", "error", err)
		}
	}
	s.bus.Publish(events.TopicJobOutcome, out)
}

type nopMetrics struct{}

func (nopMetrics) ObserveFrame(string) {}

func (nopMetrics) ObserveJob(string, string, time.Duration) {}
