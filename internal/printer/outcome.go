package printer

import (
	"time"

	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

// Result describes how far a job got. It only moves forward: unknown -> sent -> printed|error.
type Result string

const (
	ResultUnknown Result = "unknown"
	ResultSent    Result = "sent"
	ResultPrinted Result = "printed"
	ResultError   Result = "error"
)

// Outcome is the cumulative record of one job returned by Service.Send.
//
// DidPrint and ReadyForNextJob are write-once flags: once true they stay true.
// ResultError is terminal.
type Outcome struct {
	JobID            string         `json:"job_id"`
	Transport        transport.Kind `json:"transport"`
	Address          string         `json:"address,omitempty"`
	InstructionsSent bool           `json:"instructions_sent"`
	Result           Result         `json:"outcome"`
	PrinterState     *status.Status `json:"printer_state"`
	DidPrint         bool           `json:"did_print"`
	ReadyForNextJob  bool           `json:"ready_for_next_job"`
	Bytes            int            `json:"bytes"`
	Frames           int            `json:"frames"`
	MalformedFrames  int            `json:"malformed_frames"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}

// Completed reports whether the printer confirmed the print and is ready for the next job.
func (o Outcome) Completed() bool {
	return o.DidPrint && o.ReadyForNextJob
}

func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}

	return o.FinishedAt.Sub(o.StartedAt)
}

// markSent records a successful write.
func (o *Outcome) markSent() {
	o.InstructionsSent = true
	if o.Result == ResultUnknown || o.Result == "" {
		o.Result = ResultSent
	}
}

// apply folds one decoded frame into the outcome and reports whether polling should stop.
func (o *Outcome) apply(st status.Status) bool {
	o.Frames++
	o.PrinterState = &st

	if o.Result == ResultError {
		return true
	}
	if st.HasErrors() {
		o.Result = ResultError

		return true
	}
	if st.Completed() {
		o.DidPrint = true
		o.Result = ResultPrinted
	}
	if st.WaitingToReceive() {
		o.ReadyForNextJob = true
	}

	return o.Completed()
}
