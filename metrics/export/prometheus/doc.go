// Package prometheus exposes goGuard engine metrics through
// prometheus/client_golang.
//
// [Collector] reads a snapshot on every scrape; counters are named
// goguard_*_total and the verify histogram goguard_verify_latency_seconds.
// Register it on a registry of your own, or use [Handler].
package prometheus
