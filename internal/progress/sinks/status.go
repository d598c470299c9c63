package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/scholar-citation-crawler/internal/progress"
)

// Run states reported by the status API.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Counter is a completed/total pair.
type Counter struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Snapshot is the externally visible state of the current run.
type Snapshot struct {
	RunID     string    `json:"run_id,omitempty"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Crawl     Counter   `json:"crawl"`
	Enrich    Counter   `json:"enrich"`
	Artifacts int       `json:"artifacts"`
	Duration  string    `json:"duration,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StatusSink folds events into the latest Snapshot.
type StatusSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatusSink starts in the idle state.
func NewStatusSink() *StatusSink {
	return &StatusSink{snap: Snapshot{State: StateIdle}}
}

// Consume applies the batch.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage == progress.StageRunStart {
			s.snap = Snapshot{
				RunID:     evt.RunID,
				State:     StateRunning,
				StartedAt: evt.TS,
				Crawl:     Counter{Total: evt.Total},
			}
		}
		s.snap.UpdatedAt = evt.TS
		switch evt.Stage {
		case progress.StageCrawl:
			s.snap.Crawl = Counter{Completed: evt.Completed, Total: evt.Total}
		case progress.StageEnrich:
			s.snap.Enrich = Counter{Completed: evt.Completed, Total: evt.Total}
		case progress.StageExport:
			s.snap.Artifacts = evt.Total
		case progress.StageRunDone:
			s.snap.State = StateDone
			s.snap.Duration = evt.Dur.String()
		case progress.StageRunError:
			s.snap.State = StateFailed
			s.snap.Duration = evt.Dur.String()
			s.snap.Error = evt.Note
		}
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *StatusSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Running reports whether a run is in progress.
func (s *StatusSink) Running() bool {
	return s.Snapshot().State == StateRunning
}

// Close is a no-op.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
