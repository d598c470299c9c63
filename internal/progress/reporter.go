package progress

import (
	"time"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Reporter turns pipeline callbacks into events for one run.
type Reporter struct {
	emitter Emitter
	runID   string
	clock   crawler.Clock
	started time.Time
}

// NewReporter binds emitter to runID.
func NewReporter(emitter Emitter, runID string, clock crawler.Clock) *Reporter {
	return &Reporter{emitter: emitter, runID: runID, clock: clock}
}

// Start records the run start.
func (r *Reporter) Start(targets int) {
	r.started = r.clock.Now()
	r.emit(Event{Stage: StageRunStart, Total: targets})
}

// Crawl returns the ProgressSink the orchestrator reports into.
func (r *Reporter) Crawl() crawler.ProgressSink {
	return r.stage(StageCrawl)
}

// Enrich returns the ProgressSink the enricher reports into.
func (r *Reporter) Enrich() crawler.ProgressSink {
	return r.stage(StageEnrich)
}

// Exported records that artifacts were written.
func (r *Reporter) Exported(artifacts int) {
	r.emit(Event{Stage: StageExport, Completed: artifacts, Total: artifacts})
}

// Done records the end of the run; a non-nil err marks it failed. A run that
// never started reports no duration.
func (r *Reporter) Done(err error) {
	evt := Event{Stage: StageRunDone}
	if !r.started.IsZero() {
		evt.Dur = max(r.clock.Now().Sub(r.started), 0)
	}
	if err != nil {
		evt.Stage = StageRunError
		evt.Note = err.Error()
	}
	r.emit(evt)
}

func (r *Reporter) stage(stage Stage) crawler.ProgressSink {
	return crawler.ProgressFunc(func(completed, total int) {
		r.emit(Event{Stage: stage, Completed: completed, Total: total})
	})
}

func (r *Reporter) emit(evt Event) {
	evt.RunID = r.runID
	evt.TS = r.clock.Now()
	r.emitter.Emit(evt)
}
