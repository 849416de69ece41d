package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/skobkin/qlsend/internal/printer"
	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

const defaultListLimit = 20

// JobRepo stores finished job outcomes. It satisfies printer.JobRepository.
type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Insert(ctx context.Context, o printer.Outcome) error {
	state, err := marshalPrinterState(o.PrinterState)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs(job_id, transport, address, result, instructions_sent, did_print, ready_for_next_job, bytes, frames, malformed_frames, printer_state, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.JobID, string(o.Transport), nullableString(o.Address), string(o.Result), boolToInt(o.InstructionsSent),
		boolToInt(o.DidPrint), boolToInt(o.ReadyForNextJob), o.Bytes, o.Frames, o.MalformedFrames, state,
		toUnixMillis(o.StartedAt), toUnixMillis(o.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

// ListRecent returns the latest jobs, newest first.
func (r *JobRepo) ListRecent(ctx context.Context, limit int) ([]printer.Outcome, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, transport, address, result, instructions_sent, did_print, ready_for_next_job, bytes, frames, malformed_frames, printer_state, started_at, finished_at
		FROM jobs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []printer.Outcome
	for rows.Next() {
		var (
			o          printer.Outcome
			kind       string
			result     string
			address    sql.NullString
			state      sql.NullString
			startedMs  int64
			finishedMs int64
		)
		if err := rows.Scan(&o.JobID, &kind, &address, &result, &o.InstructionsSent, &o.DidPrint, &o.ReadyForNextJob,
			&o.Bytes, &o.Frames, &o.MalformedFrames, &state, &startedMs, &finishedMs); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		o.Transport = transport.Kind(kind)
		o.Result = printer.Result(result)
		o.Address = stringOrEmpty(address)
		o.StartedAt = fromUnixMillis(startedMs)
		o.FinishedAt = fromUnixMillis(finishedMs)
		if o.PrinterState, err = unmarshalPrinterState(state); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return out, nil
}

func marshalPrinterState(st *status.Status) (any, error) {
	if st == nil {
		return nil, nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal printer state: %w", err)
	}

	return string(raw), nil
}

func unmarshalPrinterState(v sql.NullString) (*status.Status, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var st status.Status
	if err := json.Unmarshal([]byte(v.String), &st); err != nil {
		return nil, fmt.Errorf("unmarshal printer state: %w", err)
	}

	return &st, nil
}
