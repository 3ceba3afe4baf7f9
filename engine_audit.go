package goGuard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
)

var demoBody = json.RawMessage(`"` + DemoPlaceholder + `"`)

// RecordActivity queues an activity event. It never blocks on storage.
func (e *Engine) RecordActivity(ctx context.Context, ev AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	switch e.config.Audit.Activity {
	case ActivityNone:
		return
	case ActivityAuthOnly:
		if ev.UserID == "" {
			return
		}
	}
	ev.Stream = StreamActivity
	e.enrich(ctx, &ev, true)
	e.audit.Record(ctx, ev)
}

// RecordSecurity queues a security event.
func (e *Engine) RecordSecurity(ctx context.Context, ev AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	ev.Stream = StreamSecurity
	e.enrich(ctx, &ev, true)
	e.audit.Record(ctx, ev)
}

// RecordClientLog queues a log line shipped by a client.
func (e *Engine) RecordClientLog(ctx context.Context, ev AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	ev.Stream = StreamClientLog
	e.enrich(ctx, &ev, false)
	e.audit.Record(ctx, ev)
}

func (e *Engine) enrich(ctx context.Context, ev *AuditEvent, withMemory bool) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	if ev.IP == "" {
		ev.IP = ClientIPFromContext(ctx)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = userAgentFromContext(ctx)
	}
	if ev.Geo == "" && ev.IP != "" {
		ev.Geo = e.geo.Lookup(ev.IP)
	}
	if withMemory && ev.Memory == nil {
		m := audit.Snapshot()
		ev.Memory = &m
	}
	if e.config.Audit.Demo {
		if len(ev.Request) > 0 {
			ev.Request = demoBody
		}
		if len(ev.Response) > 0 {
			ev.Response = demoBody
		}
	}
}

func (e *Engine) recordSecurityError(ctx context.Context, source string, err *Error) {
	if e.audit == nil || err == nil {
		return
	}
	e.RecordSecurity(ctx, AuditEvent{
		Action:   err.Kind.String(),
		Message:  err.Msg,
		Desc:     err.Desc,
		Status:   err.Status,
		Metadata: map[string]string{"source": source, "strike": err.Strike.String()},
	})
}

func (e *Engine) onMemoryLeak(m audit.Memory) {
	e.logger.Sugar().Warnw("possible memory leak", "component", "audit", "heap_alloc", m.HeapAlloc)
	e.RecordSecurity(context.Background(), AuditEvent{
		Action:  "memory",
		Message: "Possible memory leak",
		Memory:  &m,
	})
}

// FlushAudit runs one flush cycle immediately.
func (e *Engine) FlushAudit(ctx context.Context) error {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.Flush(ctx)
}

// AuditQuery reads persisted events of stream between from and to.
func (e *Engine) AuditQuery(ctx context.Context, stream AuditStream, from, to time.Time, limit int) ([]AuditEvent, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.auditStore == nil {
		return nil, newError(KindNotFound, "Not found", "Audit store not configured")
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	events, err := e.auditStore.QueryEvents(ctx, stream, from, to, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return events, nil
}
