package pg

import (
	"context"
	"encoding/json"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/jackc/pgx/v5"
)

var auditColumns = []string{
	"stream", "ts", "user_id", "action", "message", "description", "status",
	"method", "route", "ip", "geo", "user_agent", "request", "response",
	"duration_ms", "memory", "metadata",
}

// InsertEvents bulk-loads one drained batch with COPY inside a
// transaction. Either the whole batch lands or none of it does.
func (s *Store) InsertEvents(ctx context.Context, stream goGuard.AuditStream, events []goGuard.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		row, err := auditRow(stream, ev)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable("insert events", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"audit_events"}, auditColumns, pgx.CopyFromRows(rows)); err != nil {
		return unavailable("insert events", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("insert events", err)
	}
	return nil
}

func auditRow(stream goGuard.AuditStream, ev goGuard.AuditEvent) ([]any, error) {
	var memory, metadata []byte
	var err error
	if ev.Memory != nil {
		if memory, err = json.Marshal(ev.Memory); err != nil {
			return nil, err
		}
	}
	if len(ev.Metadata) > 0 {
		if metadata, err = json.Marshal(ev.Metadata); err != nil {
			return nil, err
		}
	}
	return []any{
		string(stream), ev.Timestamp, ev.UserID, ev.Action, ev.Message, ev.Desc, ev.Status,
		ev.Method, ev.Route, ev.IP, ev.Geo, ev.UserAgent, jsonOrNil(ev.Request), jsonOrNil(ev.Response),
		ev.DurationMS, jsonOrNil(memory), jsonOrNil(metadata),
	}, nil
}

func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// QueryEvents returns up to limit events of stream between from and to,
// oldest first.
func (s *Store) QueryEvents(ctx context.Context, stream goGuard.AuditStream, from, to time.Time, limit int) ([]goGuard.AuditEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ts, user_id, action, message, description, status, method, route,
			ip, geo, user_agent, request, response, duration_ms, memory, metadata
		FROM audit_events
		WHERE stream = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts
		LIMIT $4
	`, string(stream), from, to, limit)
	if err != nil {
		return nil, unavailable("query events", err)
	}
	defer rows.Close()

	var out []goGuard.AuditEvent
	for rows.Next() {
		var (
			ev               goGuard.AuditEvent
			request, resp    []byte
			memory, metadata []byte
		)
		err := rows.Scan(
			&ev.Timestamp, &ev.UserID, &ev.Action, &ev.Message, &ev.Desc, &ev.Status, &ev.Method, &ev.Route,
			&ev.IP, &ev.Geo, &ev.UserAgent, &request, &resp, &ev.DurationMS, &memory, &metadata,
		)
		if err != nil {
			return nil, unavailable("query events", err)
		}
		ev.Stream = stream
		ev.Request = request
		ev.Response = resp
		if len(memory) > 0 {
			var m goGuard.AuditMemory
			if json.Unmarshal(memory, &m) == nil {
				ev.Memory = &m
			}
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &ev.Metadata)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query events", err)
	}
	return out, nil
}
