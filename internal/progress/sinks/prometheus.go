package sinks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/translation-progress/internal/progress"
)

// PrometheusSink exports roll-up progress metrics. It owns the collectors
// for aggregation passes and publish attempt outcomes.
type PrometheusSink struct {
	aggregations    *prometheus.CounterVec
	aggregatedItems *prometheus.CounterVec
	aggregatedWords *prometheus.CounterVec
	aggregateTime   *prometheus.HistogramVec

	publishAttempts *prometheus.CounterVec
	publishTime     *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_aggregations_total",
			Help: "Completed aggregation passes partitioned by track.",
		}, []string{"track"}),
		aggregatedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_aggregated_items_total",
			Help: "Work items scanned by aggregation passes per track.",
		}, []string{"track"}),
		aggregatedWords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_aggregated_words_total",
			Help: "Word-weighted volume scanned by aggregation passes per track.",
		}, []string{"track"}),
		aggregateTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_aggregation_duration_seconds",
			Help:    "Wall time per aggregation pass.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
		}, []string{"track"}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_publish_attempts_total",
			Help: "Publish attempts partitioned by track and outcome.",
		}, []string{"track", "outcome"}),
		publishTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_publish_duration_seconds",
			Help:    "Wall time per publish attempt partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"track", "outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.aggregations,
		s.aggregatedItems,
		s.aggregatedWords,
		s.aggregateTime,
		s.publishAttempts,
		s.publishTime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	track := strconv.Itoa(evt.TrackID)
	switch evt.Stage {
	case progress.StageAggregateDone:
		s.aggregations.WithLabelValues(track).Inc()
		s.aggregatedItems.WithLabelValues(track).Add(float64(evt.Items))
		s.aggregatedWords.WithLabelValues(track).Add(float64(evt.Words))
		if evt.Dur > 0 {
			s.aggregateTime.WithLabelValues(track).Observe(evt.Dur.Seconds())
		}
	case progress.StagePublishDone:
		s.observePublish(track, "success", evt)
	case progress.StagePublishFailed:
		s.observePublish(track, "failure", evt)
	case progress.StagePublishUncertain:
		s.observePublish(track, "uncertain", evt)
	}
}

func (s *PrometheusSink) observePublish(track, outcome string, evt progress.Event) {
	s.publishAttempts.WithLabelValues(track, outcome).Inc()
	if evt.Dur > 0 {
		s.publishTime.WithLabelValues(track, outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
