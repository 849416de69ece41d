package events

import (
	"time"

	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

// JobStarted is published once the instruction stream has been written.
type JobStarted struct {
	JobID     string
	Transport transport.Kind
	Address   string
	Bytes     int
	Blocking  bool
	Timestamp time.Time
}

// StatusFrame carries one decoded status frame received while polling.
type StatusFrame struct {
	JobID   string
	Elapsed time.Duration
	Status  status.Status
	Hex     string
}

// MalformedFrame is a frame the decoder rejected. Polling continues after it.
type MalformedFrame struct {
	JobID   string
	Elapsed time.Duration
	Hex     string
	Err     string
}
