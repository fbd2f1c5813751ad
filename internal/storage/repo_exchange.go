package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ExchangeRecord struct {
	ID           uuid.UUID
	StartedAt    time.Time
	Endpoint     string
	Model        string
	MessageCount int
	ToolCount    int
}

func InsertExchangeJob(r *ExchangeRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, `
			INSERT INTO exchanges (id, started_at, endpoint, model, message_count, tool_count)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, r.StartedAt, nilIfEmpty(r.Endpoint), nilIfEmpty(r.Model), r.MessageCount, r.ToolCount,
		)
		return err
	})
}

// ExchangeOutcome is what the client knows once the exchange has ended.
type ExchangeOutcome struct {
	ID           uuid.UUID
	State        string // "completed" | "failed"
	StatusCode   int
	ErrorMessage string
	Duration     time.Duration
	ToolCalls    int
}

func FinishExchangeJob(o *ExchangeOutcome) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, `
			UPDATE exchanges SET
				state = $1,
				status_code = $2,
				error_message = $3,
				duration_ms = $4,
				tool_calls = $5
			WHERE id = $6`,
			o.State, nilIfZero(o.StatusCode), nilIfEmpty(o.ErrorMessage),
			int(o.Duration.Milliseconds()), o.ToolCalls, o.ID,
		)
		return err
	})
}

// StreamSummary is derived by the recorder from the tapped response bytes.
type StreamSummary struct {
	Frames           int
	MalformedFrames  int
	ContentChars     int
	ToolCalls        int
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

func UpdateExchangeStreamJob(id uuid.UUID, s StreamSummary) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, `
			UPDATE exchanges SET
				frames = $1,
				malformed_frames = $2,
				content_chars = $3,
				finish_reason = COALESCE($4, finish_reason),
				prompt_tokens = $5,
				completion_tokens = $6
			WHERE id = $7`,
			s.Frames, s.MalformedFrames, s.ContentChars, nilIfEmpty(s.FinishReason),
			s.PromptTokens, s.CompletionTokens, id,
		)
		return err
	})
}

type FrameStat struct {
	Index int
	Kind  string
	Bytes int
}

// InsertFrameStatsJob bulk-loads per-frame statistics using the COPY protocol.
func InsertFrameStatsJob(id uuid.UUID, frames []FrameStat) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		rows := make([][]any, len(frames))
		for i, f := range frames {
			rows[i] = []any{id, f.Index, f.Kind, f.Bytes}
		}

		_, err := db.CopyFrom(ctx,
			pgx.Identifier{"exchange_frames"},
			[]string{"exchange_id", "frame_index", "kind", "raw_bytes"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
