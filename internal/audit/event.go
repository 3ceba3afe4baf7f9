package audit

import (
	"encoding/json"
	"time"
)

// Stream names one of the independent event streams.
type Stream string

const (
	StreamActivity  Stream = "activity"
	StreamSecurity  Stream = "security"
	StreamClientLog Stream = "clientlog"
)

// Streams lists every stream in flush order.
var Streams = []Stream{StreamActivity, StreamSecurity, StreamClientLog}

// Memory is a process memory snapshot attached to events.
type Memory struct {
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// Event is the append-only record shared by all streams.
//
// Action holds the route key for activity, the security kind for security
// events and the level for client logs.
type Event struct {
	Stream     Stream            `json:"-"`
	Timestamp  time.Time         `json:"timestamp"`
	UserID     string            `json:"user_id,omitempty"`
	Action     string            `json:"action,omitempty"`
	Message    string            `json:"message,omitempty"`
	Desc       string            `json:"desc,omitempty"`
	Status     int               `json:"status,omitempty"`
	Method     string            `json:"method,omitempty"`
	Route      string            `json:"route,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Geo        string            `json:"geo,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Request    json.RawMessage   `json:"request,omitempty"`
	Response   json.RawMessage   `json:"response,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	Memory     *Memory           `json:"memory,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
