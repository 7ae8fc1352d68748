package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/db"
)

// Event is one committed write. Ref names the node the request acted on
// (e.g. "lo:12"); Data is the JSON summary of what was recalculated.
type Event struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Ref       string          `json:"ref"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

type EventRepo struct{ q db.DBTX }

// NewEventRepo binds the log to q. Pass the request transaction so the event
// commits or rolls back with the change it describes.
func NewEventRepo(q db.DBTX) *EventRepo { return &EventRepo{q: q} }

func (r *EventRepo) Append(ctx context.Context, kind, ref string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return apperr.Storage("encode audit event", err)
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO event_log (kind, ref, data, created_at) VALUES ($1, $2, $3, $4)`,
		kind, ref, string(b), time.Now().Unix())
	return apperr.Storage("append audit event", err)
}

// Since returns up to limit events with seq > after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT seq, kind, ref, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, apperr.Storage("list audit events", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Ref, &data, &e.CreatedAt); err != nil {
			return nil, apperr.Storage("scan audit event", err)
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list audit events", err)
	}
	return out, nil
}
