// Package status resolves a group's per-status percentage vector into a
// single roll-up label.
package status

import "github.com/JakeFAU/translation-progress/internal/pipeline"

// Percentages is the word-weighted completion vector for one group. Values
// are 0..100 and sum to 100 for non-empty groups.
type Percentages struct {
	Pending       float64
	Loaded        float64
	Annotated     float64
	Validated     float64
	Published     float64
	PublishFailed float64
}

// FromCounts converts the aggregator's percentage map into a vector.
func FromCounts(m map[pipeline.Status]float64) Percentages {
	return Percentages{
		Pending:       m[pipeline.StatusPending],
		Loaded:        m[pipeline.StatusLoaded],
		Annotated:     m[pipeline.StatusAnnotated],
		Validated:     m[pipeline.StatusValidated],
		Published:     m[pipeline.StatusPublished],
		PublishFailed: m[pipeline.StatusPublishFailed],
	}
}

// Resolve maps a percentage vector to the group's resolved status. Rules
// are evaluated in strict priority order and the first match wins:
//
//  1. publish_failed% > 0   -> PUBLISH_FAILED
//  2. pending%       == 100 -> PENDING
//  3. annotated%     == 100 -> ANNOTATED
//  4. validated%     == 100 -> VALIDATED
//  5. published%     == 100 -> PUBLISHED
//  6. otherwise             -> WIP
//
// Any nonzero publish failure dominates, including over a simultaneous
// 100% validated vector: a failed publish is a corrective-action signal
// regardless of magnitude. Full-percentage thresholds require homogeneity
// before a group counts as done in a stage; mixed groups fall to WIP.
func Resolve(p Percentages) pipeline.Resolved {
	switch {
	case p.PublishFailed > 0:
		return pipeline.ResolvedPublishFailed
	case p.Pending == 100:
		return pipeline.ResolvedPending
	case p.Annotated == 100:
		return pipeline.ResolvedAnnotated
	case p.Validated == 100:
		return pipeline.ResolvedValidated
	case p.Published == 100:
		return pipeline.ResolvedPublished
	default:
		return pipeline.ResolvedWIP
	}
}

// PublishEligible reports whether the resolved status permits a publish
// attempt.
func PublishEligible(r pipeline.Resolved) bool {
	return r == pipeline.ResolvedValidated || r == pipeline.ResolvedPublishFailed
}
