// Package prometheus exposes credgate engine metrics through a
// client_golang Collector. Counters publish as credgate_*_total and the
// latency histograms as credgate_*_latency_seconds.
//
// The Collector reads an engine snapshot on every scrape; it never registers
// itself globally. Callers register it or mount [Exporter.Handler].
package prometheus
