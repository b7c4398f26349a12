package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishActionToken(t *testing.T) {
	t.Parallel()

	eligible := Group{
		Key:             GroupKey{"A", "B"},
		TrackID:         7,
		ResolvedStatus:  ResolvedValidated,
		PublishEligible: true,
	}
	require.Equal(t, "publishaction;A;B;7", eligible.PublishActionToken())

	failed := eligible
	failed.ResolvedStatus = ResolvedPublishFailed
	require.Equal(t, "publishaction;A;B;7", failed.PublishActionToken())

	ineligible := Group{
		Key:            GroupKey{"A", "B"},
		TrackID:        7,
		ResolvedStatus: ResolvedAnnotated,
	}
	require.Equal(t, "", ineligible.PublishActionToken())
}

func TestTrackWordCount(t *testing.T) {
	t.Parallel()

	track := TrackConfig{TextField: "source_text"}

	require.Equal(t, 3, track.WordCount(map[string]string{"source_text": "  one\ttwo \n three "}))
	require.Zero(t, track.WordCount(map[string]string{"source_text": ""}))
	require.Zero(t, track.WordCount(map[string]string{"other": "one two"}))
	require.Zero(t, track.WordCount(nil))
	require.Zero(t, TrackConfig{}.WordCount(map[string]string{"source_text": "one"}))
}

func TestTrackValidatePayload(t *testing.T) {
	t.Parallel()

	track := TrackConfig{Fields: []string{"project", "source_text"}}

	require.NoError(t, track.ValidatePayload(map[string]string{"project": "p"}))
	require.NoError(t, track.ValidatePayload(nil))

	err := track.ValidatePayload(map[string]string{"rogue": "x"})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "rogue", schemaErr.Field)
}

func TestGroupKeyFor(t *testing.T) {
	t.Parallel()

	track := TrackConfig{GroupFields: []string{"project", "batch"}}
	key := track.GroupKeyFor(map[string]string{"project": "acme"})
	require.Equal(t, GroupKey{"acme", ""}, key)
}

func TestGroupKeyEqualClone(t *testing.T) {
	t.Parallel()

	k := GroupKey{"a", "b"}
	require.True(t, k.Equal(GroupKey{"a", "b"}))
	require.False(t, k.Equal(GroupKey{"a"}))
	require.False(t, k.Equal(GroupKey{"a", "c"}))

	c := k.Clone()
	c[0] = "z"
	require.Equal(t, "a", k[0])
}
