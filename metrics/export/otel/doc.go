// Package otel publishes goGuard engine metrics through an OpenTelemetry
// meter.
//
// Counters are observed from engine snapshots on each collection. The
// verify latency histogram is exported as a cumulative bucket gauge keyed
// by the "le" attribute plus a total count gauge, since the engine keeps
// bucket counts only.
package otel
