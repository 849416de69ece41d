//go:build !linux

package transport

import (
	"errors"
	"fmt"
	"runtime"
)

var errKernelUnsupported = errors.New("kernel printer devices are unsupported")

func openKernelDevice(string) (kernelDevice, error) {
	return nil, fmt.Errorf("%w on %s", errKernelUnsupported, runtime.GOOS)
}
