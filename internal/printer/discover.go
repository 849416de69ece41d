package printer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/skobkin/qlsend/internal/transport"
)

// Discover lists devices reachable through one transport kind; empty kind means the default.
func (s *Service) Discover(ctx context.Context, kind transport.Kind) ([]transport.Device, error) {
	if kind == "" {
		kind = s.cfg.DefaultTransport
	}
	backend, err := s.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}

	devices, err := backend.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover %s devices: %w", kind, err)
	}

	return devices, nil
}

// DiscoverAll queries every registered transport concurrently. A failing transport is logged
// and skipped so one missing subsystem does not hide devices found by the others.
func (s *Service) DiscoverAll(ctx context.Context) ([]transport.Device, error) {
	kinds := s.registry.Kinds()
	found := make([][]transport.Device, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			devices, err := s.Discover(gctx, kind)
			if err != nil {
				s.logger.Warn("device discovery failed", "transport", kind, "error", err)

				return nil
			}
			found[i] = devices

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []transport.Device
	for _, devices := range found {
		all = append(all, devices...)
	}

	return all, nil
}
