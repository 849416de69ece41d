package printer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

// ErrNoReadback is returned by QueryStatus for transports that cannot report status.
var ErrNoReadback = errors.New("transport does not support status readback")

// ErrNoStatus is returned by QueryStatus when no valid frame arrived in time.
var ErrNoStatus = errors.New("no status received from printer")

// QueryStatus asks the printer for a status reply and returns the first frame that decodes.
func (s *Service) QueryStatus(ctx context.Context, address string, kind transport.Kind, timeout time.Duration) (status.Status, error) {
	kind = s.ResolveTransport(kind, address)
	backend, err := s.registry.Lookup(kind)
	if err != nil {
		return status.Status{}, err
	}
	if !backend.Readback {
		return status.Status{}, fmt.Errorf("%w: %s", ErrNoReadback, kind)
	}
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}

	tr, err := s.open(ctx, backend, address)
	if err != nil {
		return status.Status{}, err
	}
	defer s.closeTransport(tr)

	logger := s.logger.With("transport", kind)
	start := time.Now()
	if err := tr.Write(ctx, status.Request()); err != nil {
		return status.Status{}, transport.WrapError("write", kind, err)
	}

	deadline := start.Add(timeout)
	readCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return status.Status{}, err
		}
		frame, err := tr.ReadFrame(readCtx)
		if err != nil || len(frame) == 0 {
			s.sleep(s.cfg.PollInterval)
			continue
		}
		st, err := s.decoder.Decode(frame)
		if err != nil {
			logger.Warn("couldn't understand printer response", "frame", status.Hex(frame), "error", err)
			continue
		}
		logger.Debug("status reply", "elapsed", time.Since(start), "status", st.String())

		return st, nil
	}

	return status.Status{}, fmt.Errorf("%w within %s", ErrNoStatus, timeout)
}
