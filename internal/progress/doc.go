// Package progress carries run milestones (crawl and enrichment counters)
// from the pipeline to observers. Emitters never block: a Hub buffers events
// and fans them out in batches to sinks such as the terminal bar, the status
// API snapshot, Prometheus gauges and the log.
package progress
