package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholar-citation-crawler/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{RunID: "r", TS: now, Stage: progress.StageRunStart, Total: 7},
		{RunID: "r", TS: now, Stage: progress.StageCrawl, Completed: 5, Total: 7},
		{RunID: "r", TS: now, Stage: progress.StageEnrich, Completed: 2, Total: 10},
		{RunID: "r", TS: now, Stage: progress.StageRunDone, Dur: 20 * time.Minute},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 5.0, testutil.ToFloat64(sink.completed.WithLabelValues("crawl")), 1e-9)
	require.InDelta(t, 7.0, testutil.ToFloat64(sink.total.WithLabelValues("crawl")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.completed.WithLabelValues("enrich")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("success")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "citecrawler_run_duration_seconds"))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
