package status

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
)

func TestResolvePriorityOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Percentages
		want pipeline.Resolved
	}{
		{"all pending", Percentages{Pending: 100}, pipeline.ResolvedPending},
		{"all annotated", Percentages{Annotated: 100}, pipeline.ResolvedAnnotated},
		{"all validated", Percentages{Validated: 100}, pipeline.ResolvedValidated},
		{"all published", Percentages{Published: 100}, pipeline.ResolvedPublished},
		{"mixed annotated validated", Percentages{Annotated: 60, Validated: 40}, pipeline.ResolvedWIP},
		{"loaded only", Percentages{Loaded: 100}, pipeline.ResolvedWIP},
		{"empty group", Percentages{}, pipeline.ResolvedWIP},
		{"tiny publish failure dominates", Percentages{Validated: 100, PublishFailed: 1}, pipeline.ResolvedPublishFailed},
		{"publish failure over published", Percentages{Published: 99.5, PublishFailed: 0.5}, pipeline.ResolvedPublishFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Resolve(tc.in))
		})
	}
}

func TestPublishEligible(t *testing.T) {
	t.Parallel()

	require.True(t, PublishEligible(pipeline.ResolvedValidated))
	require.True(t, PublishEligible(pipeline.ResolvedPublishFailed))
	require.False(t, PublishEligible(pipeline.ResolvedAnnotated))
	require.False(t, PublishEligible(pipeline.ResolvedPending))
	require.False(t, PublishEligible(pipeline.ResolvedPublished))
	require.False(t, PublishEligible(pipeline.ResolvedWIP))
}

func TestFromCounts(t *testing.T) {
	t.Parallel()

	p := FromCounts(map[pipeline.Status]float64{
		pipeline.StatusAnnotated: 66.67,
		pipeline.StatusValidated: 33.33,
	})
	require.Equal(t, 66.67, p.Annotated)
	require.Equal(t, 33.33, p.Validated)
	require.Zero(t, p.PublishFailed)
}
