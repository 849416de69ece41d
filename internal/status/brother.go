package status

import (
	"bytes"
	"fmt"
)

var frameHeader = []byte{0x80, 0x20, 0x42}

const (
	offsetModelCode    = 4
	offsetErrorInfo1   = 8
	offsetErrorInfo2   = 9
	offsetMediaWidth   = 10
	offsetMediaType    = 11
	offsetMediaLength  = 17
	offsetStatusType   = 18
	offsetPhaseType    = 19
	offsetNotification = 22
)

// Bit n of error information byte 1.
var errorInfo1 = [8]string{
	"No media when printing",
	"End of media (die-cut size only)",
	"Tape cutter jam",
	"Not used",
	"Main unit in use (QL-560/650TD/1050)",
	"Printer turned off",
	"High-voltage adapter (not used)",
	"Fan doesn't work (QL-1050/1060N)",
}

// Bit n of error information byte 2.
var errorInfo2 = [8]string{
	"Replace media error",
	"Expansion buffer full error",
	"Transmission / Communication error",
	"Communication buffer full error (not used)",
	"Cover opened while printing (Except QL-500)",
	"Cancel key (not used)",
	"Media cannot be fed (also when the media end is detected)",
	"System error",
}

var mediaTypes = map[byte]string{
	0x00: "No media",
	0x0A: "Continuous length tape",
	0x0B: "Die-cut labels",
	0x4A: "Continuous length tape",
	0x4B: "Die-cut labels",
}

var statusTypes = map[byte]Type{
	0x00: TypeStatusReply,
	0x01: TypePrintingCompleted,
	0x02: TypeErrorOccurred,
	0x03: TypeExitIFMode,
	0x04: TypeTurnedOff,
	0x05: TypeNotification,
	0x06: TypePhaseChange,
}

var phaseTypes = map[byte]Phase{
	0x00: PhaseWaitingToReceive,
	0x01: PhasePrinting,
}

// BrotherQL decodes the status reply of the QL label printer family.
type BrotherQL struct{}

func (BrotherQL) Decode(frame []byte) (Status, error) {
	if len(frame) < FrameSize {
		return Status{}, fmt.Errorf("%w: need %d bytes, got %d (%s)", ErrMalformedFrame, FrameSize, len(frame), Hex(frame))
	}
	if !bytes.HasPrefix(frame, frameHeader) {
		return Status{}, fmt.Errorf("%w: unexpected header (%s)", ErrMalformedFrame, Hex(frame[:len(frameHeader)]))
	}

	st := Status{
		Errors:        decodeErrors(frame[offsetErrorInfo1], frame[offsetErrorInfo2]),
		StatusType:    TypeUnknown,
		PhaseType:     PhaseUnknown,
		MediaType:     "unknown",
		MediaWidthMM:  int(frame[offsetMediaWidth]),
		MediaLengthMM: int(frame[offsetMediaLength]),
		ModelCode:     frame[offsetModelCode],
		Notification:  frame[offsetNotification],
	}
	if t, ok := statusTypes[frame[offsetStatusType]]; ok {
		st.StatusType = t
	}
	if p, ok := phaseTypes[frame[offsetPhaseType]]; ok {
		st.PhaseType = p
	}
	if m, ok := mediaTypes[frame[offsetMediaType]]; ok {
		st.MediaType = m
	}

	return st, nil
}

func decodeErrors(info1, info2 byte) []string {
	var errs []string
	for bit := 0; bit < 8; bit++ {
		if info1&(1<<bit) != 0 {
			errs = append(errs, errorInfo1[bit])
		}
	}
	for bit := 0; bit < 8; bit++ {
		if info2&(1<<bit) != 0 {
			errs = append(errs, errorInfo2[bit])
		}
	}

	return errs
}

// Request returns the command sequence that asks the printer for a status reply:
// invalidate, initialize, then ESC i S.
func Request() []byte {
	cmd := make([]byte, 0, 200+5)
	cmd = append(cmd, make([]byte, 200)...)
	cmd = append(cmd, 0x1B, 0x40)
	cmd = append(cmd, 0x1B, 0x69, 0x53)

	return cmd
}
