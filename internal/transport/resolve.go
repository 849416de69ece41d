package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrCannotGuess is returned when an address does not match any known transport pattern.
var ErrCannotGuess = errors.New("cannot guess transport for address")

// GuessKind infers the transport kind from the shape of a device address.
func GuessKind(address string) (Kind, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: address is empty", ErrCannotGuess)
	}

	switch {
	case strings.HasPrefix(address, "usb://"), strings.HasPrefix(address, "0x"):
		return KindUSB, nil
	case strings.HasPrefix(address, "file://"),
		strings.HasPrefix(address, "/dev/usb/"),
		numberedName(address, "lp"):
		return KindKernel, nil
	case strings.HasPrefix(address, "tcp://"):
		return KindNetwork, nil
	case strings.HasPrefix(address, "serial://"),
		strings.HasPrefix(address, "/dev/tty"),
		strings.HasPrefix(address, "/dev/rfcomm"),
		strings.HasPrefix(address, "/dev/cu."),
		numberedName(strings.ToUpper(address), "COM"):
		return KindSerial, nil
	}

	if looksLikeHostPort(address) {
		return KindNetwork, nil
	}

	return "", fmt.Errorf("%w: %q", ErrCannotGuess, address)
}

// looksLikeHostPort accepts host:port without a scheme and with a numeric port.
func looksLikeHostPort(address string) bool {
	if strings.Contains(address, "://") {
		return false
	}
	host, rawPort, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	port, err := strconv.Atoi(rawPort)

	return err == nil && port > 0 && port <= 65535
}

// Resolve picks the transport for one job: explicit kind verbatim, else a guess from the address,
// else fallback. The second return value is true when fallback was used.
func Resolve(explicit Kind, address string, fallback Kind) (Kind, bool) {
	if explicit != "" {
		return explicit, false
	}

	kind, err := GuessKind(address)
	if err != nil {
		return fallback, true
	}

	return kind, false
}

// numberedName matches names like lp0 or COM3.
func numberedName(s, prefix string) bool {
	digits := strings.TrimPrefix(s, prefix)
	if digits == s || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
