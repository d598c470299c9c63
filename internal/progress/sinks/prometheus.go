package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scholar-citation-crawler/internal/progress"
)

// PrometheusSink exposes run progress as gauges plus run outcome counters.
type PrometheusSink struct {
	completed   *prometheus.GaugeVec
	total       *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg (default registerer
// when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		completed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "citecrawler_progress_completed",
			Help: "Items completed in the current run by stage (crawl targets, enrich citers).",
		}, []string{"stage"}),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "citecrawler_progress_items",
			Help: "Items expected in the current run by stage.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecrawler_runs_total",
			Help: "Runs finished partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citecrawler_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{s.completed, s.total, s.runs, s.runDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.completed.Reset()
			s.total.Reset()
			s.total.WithLabelValues("crawl").Set(float64(evt.Total))
			s.completed.WithLabelValues("crawl").Set(0)
		case progress.StageCrawl, progress.StageEnrich:
			stage := strings.ToLower(string(evt.Stage))
			s.completed.WithLabelValues(stage).Set(float64(evt.Completed))
			s.total.WithLabelValues(stage).Set(float64(evt.Total))
		case progress.StageRunDone:
			s.finish("success", evt)
		case progress.StageRunError:
			s.finish("error", evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finish(result string, evt progress.Event) {
	s.runs.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
