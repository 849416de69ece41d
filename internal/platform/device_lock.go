package platform

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrDeviceBusy indicates another process holds the lock for the same printer.
var ErrDeviceBusy = errors.New("device is busy")

// ErrDeviceLockUnsupported indicates the current platform has no lock backend implementation.
var ErrDeviceLockUnsupported = errors.New("device lock unsupported")

const defaultLockRetry = 50 * time.Millisecond

// DeviceLock represents an acquired per-device lock.
type DeviceLock interface {
	Release() error
}

// AcquireDeviceLock takes the lock for one printer address without waiting.
func AcquireDeviceLock(appID, device string) (DeviceLock, error) {
	return acquireDeviceLock(
		normalizeLockComponent(appID, "app"),
		normalizeLockComponent(device, "default"),
	)
}

// WaitDeviceLock retries AcquireDeviceLock while the device is busy, until ctx is done.
func WaitDeviceLock(ctx context.Context, appID, device string, retry time.Duration) (DeviceLock, error) {
	if retry <= 0 {
		retry = defaultLockRetry
	}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		lock, err := AcquireDeviceLock(appID, device)
		if !errors.Is(err, ErrDeviceBusy) {
			return lock, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrDeviceBusy, ctx.Err())
		case <-ticker.C:
		}
	}
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
