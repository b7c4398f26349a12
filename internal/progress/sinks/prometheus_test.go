package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/translation-progress/internal/progress"
)

func TestPrometheusSinkCountsOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{TS: now, Stage: progress.StageAggregateDone, TrackID: 7, Groups: 3, Items: 12, Words: 480, Dur: 40 * time.Millisecond},
		{TS: now, Stage: progress.StagePublishDone, TrackID: 7, GroupKey: "A;B", Dur: time.Second},
		{TS: now, Stage: progress.StagePublishFailed, TrackID: 7, GroupKey: "A;C", Note: "boom"},
		{TS: now, Stage: progress.StagePublishUncertain, TrackID: 7, GroupKey: "A;D"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.aggregations.WithLabelValues("7")))
	require.Equal(t, 12.0, testutil.ToFloat64(sink.aggregatedItems.WithLabelValues("7")))
	require.Equal(t, 480.0, testutil.ToFloat64(sink.aggregatedWords.WithLabelValues("7")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.publishAttempts.WithLabelValues("7", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.publishAttempts.WithLabelValues("7", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.publishAttempts.WithLabelValues("7", "uncertain")))
}

func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
