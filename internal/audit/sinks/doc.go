// Package sinks implements audit consumers backed by structured logs,
// Prometheus counters and the crawl log table. Each sink satisfies
// audit.Sink and tolerates repeated Consume/Close cycles.
package sinks
