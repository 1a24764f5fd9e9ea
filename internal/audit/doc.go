// Package audit collects the candidates the reconciler could not link
// automatically. A non-blocking Hub batches events on a background goroutine
// and fans them out to pluggable sinks such as logs, Prometheus counters or a
// persistent crawl log table.
package audit
