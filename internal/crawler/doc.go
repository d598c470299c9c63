// Package crawler defines the citation crawl domain: targets, records, page
// snapshots, and the small ports (sessions, sinks, clocks) the orchestrator
// drives.
package crawler
