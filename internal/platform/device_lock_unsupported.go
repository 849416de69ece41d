//go:build !unix

package platform

import (
	"fmt"
	"runtime"
)

func acquireDeviceLock(_, _ string) (DeviceLock, error) {
	return nil, fmt.Errorf("%w on %s", ErrDeviceLockUnsupported, runtime.GOOS)
}
