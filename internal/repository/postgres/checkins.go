package postgres

import (
	"context"
	"encoding/json"

	"github.com/wiredberlin/boxoffice/internal/domain"
)

// CheckInRepo is insert-only: entries are never updated or deleted.
type CheckInRepo struct {
	pool Pool
	db   DB
}

func (r *CheckInRepo) With(db DB) *CheckInRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CheckInRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Append stores one scan attempt and fills in its ID and timestamp.
func (r *CheckInRepo) Append(ctx context.Context, entry *domain.CheckInLog) error {
	const op = "postgres.CheckInRepo.Append"

	var raw []byte
	if len(entry.RawResponse) > 0 {
		raw = jsonb(entry.RawResponse)
	}

	if err := r.handle().QueryRow(ctx,
		`INSERT INTO checkin_logs(code, event_slug, status, message, raw_response, scanned_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		entry.Code, entry.EventSlug, string(entry.Status), entry.Message, raw, entry.ScannedBy,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// jsonb returns b when it is valid JSON, otherwise b wrapped as {"body": "..."}.
func jsonb(b []byte) []byte {
	if json.Valid(b) {
		return b
	}

	wrapped, _ := json.Marshal(map[string]string{"body": string(b)})
	return wrapped
}

// Recent lists the newest entries for an event, newest first.
func (r *CheckInRepo) Recent(ctx context.Context, eventSlug string, limit int) ([]domain.CheckInLog, error) {
	const op = "postgres.CheckInRepo.Recent"

	rows, err := r.handle().Query(ctx,
		`SELECT id, code, event_slug, status, message, raw_response, scanned_by, created_at
		 FROM checkin_logs
		 WHERE event_slug = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		eventSlug, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.CheckInLog, 0, limit)
	for rows.Next() {
		var (
			e      domain.CheckInLog
			status string
			raw    []byte
		)

		if err := rows.Scan(
			&e.ID,
			&e.Code,
			&e.EventSlug,
			&status,
			&e.Message,
			&raw,
			&e.ScannedBy,
			&e.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		e.Status = domain.CheckInStatus(status)
		e.RawResponse = raw
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
