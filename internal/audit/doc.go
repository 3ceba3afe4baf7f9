// Package audit buffers activity, security and client-log events in Redis
// and periodically bulk-persists them.
//
// Each stream owns two list slots and an atomic active index. Writers
// append to the active slot; the flusher flips the index, then moves the
// previous slot into an inflight list with one Lua call and inserts it. The
// inflight list is only deleted after a successful insert, so a failed
// insert is retried on the next cycle.
//
// Record never touches Redis itself: a Dispatcher queues events in memory
// and one goroutine pushes them in per-stream batches.
package audit
