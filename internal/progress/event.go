package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart Stage = "RUN_START"
	StageCrawl    Stage = "CRAWL"
	StageEnrich   Stage = "ENRICH"
	StageExport   Stage = "EXPORT"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event is one progress observation.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	// Completed and Total are counters for CRAWL (targets) and ENRICH
	// (citing titles).
	Completed int
	Total     int
	// Dur is the run's wall time on RUN_DONE/RUN_ERROR.
	Dur  time.Duration
	Note string
}

// Validate rejects malformed events.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageExport, StageRunDone, StageRunError:
	case StageCrawl, StageEnrich:
		if e.Total < 0 || e.Completed < 0 || e.Completed > e.Total {
			return fmt.Errorf("invalid counters %d/%d", e.Completed, e.Total)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Fraction returns Completed/Total in [0, 1]; an empty total counts as done.
func (e Event) Fraction() float64 {
	if e.Total <= 0 {
		return 1
	}
	return float64(e.Completed) / float64(e.Total)
}
