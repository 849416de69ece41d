// Package status decodes the 32-byte status frames Brother QL printers send back.
package status

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame is returned for frames that are not valid status replies.
var ErrMalformedFrame = errors.New("malformed status frame")

// FrameSize is the length of one status frame.
const FrameSize = 32

// Type is the status type reported in byte 18 of a frame.
type Type string

const (
	TypeStatusReply       Type = "Reply to status request"
	TypePrintingCompleted Type = "Printing completed"
	TypeErrorOccurred     Type = "Error occurred"
	TypeExitIFMode        Type = "Exit IF mode"
	TypeTurnedOff         Type = "Turned off"
	TypeNotification      Type = "Notification"
	TypePhaseChange       Type = "Phase change"
	TypeUnknown           Type = "unknown"
)

// Phase is the phase type reported in byte 19; meaningful for TypePhaseChange only.
type Phase string

const (
	PhaseWaitingToReceive Phase = "Waiting to receive"
	PhasePrinting         Phase = "Printing state"
	PhaseUnknown          Phase = "unknown"
)

// Status is one decoded frame.
type Status struct {
	Errors        []string `json:"errors"`
	StatusType    Type     `json:"status_type"`
	PhaseType     Phase    `json:"phase_type"`
	MediaType     string   `json:"media_type"`
	MediaWidthMM  int      `json:"media_width_mm"`
	MediaLengthMM int      `json:"media_length_mm"`
	ModelCode     byte     `json:"model_code"`
	Notification  byte     `json:"notification"`
}

// HasErrors reports whether the device flagged any error bit.
func (s Status) HasErrors() bool {
	return len(s.Errors) > 0
}

// Completed reports a "printing completed" frame.
func (s Status) Completed() bool {
	return s.StatusType == TypePrintingCompleted
}

// WaitingToReceive reports a phase change back to the receiving state.
func (s Status) WaitingToReceive() bool {
	return s.StatusType == TypePhaseChange && s.PhaseType == PhaseWaitingToReceive
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", s.StatusType)
	if s.StatusType == TypePhaseChange {
		fmt.Fprintf(&b, " (%s)", s.PhaseType)
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, " errors=%s", strings.Join(s.Errors, "; "))
	}

	return b.String()
}

// Decoder turns raw frames into Status values.
type Decoder interface {
	Decode(frame []byte) (Status, error)
}

// Hex formats a frame for logs.
func Hex(frame []byte) string {
	return strings.ToUpper(hex.EncodeToString(frame))
}
