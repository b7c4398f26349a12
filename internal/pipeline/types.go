// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a work item.
type Status string

// Work item statuses persisted in the item store.
const (
	StatusPending       Status = "PENDING"
	StatusLoaded        Status = "LOADED"
	StatusAnnotated     Status = "ANNOTATED"
	StatusValidated     Status = "VALIDATED"
	StatusPublished     Status = "PUBLISHED"
	StatusPublishFailed Status = "PUBLISH_FAILED"
)

// Statuses lists every item status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending,
		StatusLoaded,
		StatusAnnotated,
		StatusValidated,
		StatusPublished,
		StatusPublishFailed,
	}
}

// Valid reports whether s is one of the known item statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusLoaded, StatusAnnotated, StatusValidated,
		StatusPublished, StatusPublishFailed:
		return true
	}
	return false
}

// GroupKey is the ordered tuple of designated field values that assigns a
// work item to exactly one roll-up group.
type GroupKey []string

// String joins the key values for logging and map keys. The separator is
// not part of any external format.
func (k GroupKey) String() string {
	return strings.Join(k, "\x1f")
}

// Equal reports whether two keys have identical values in identical order.
func (k GroupKey) Equal(other GroupKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the key.
func (k GroupKey) Clone() GroupKey {
	if len(k) == 0 {
		return nil
	}
	out := make(GroupKey, len(k))
	copy(out, k)
	return out
}

// WorkItem is one unit of review/translation work moving through the pipeline.
type WorkItem struct {
	ID          string            `json:"id"`
	TrackID     int               `json:"track_id"`
	GroupKey    GroupKey          `json:"group_key"`
	Payload     map[string]string `json:"payload"`
	Status      Status            `json:"status"`
	WordCount   int               `json:"word_count"`
	CreatedAt   time.Time         `json:"created_at"`
	AnnotatedAt *time.Time        `json:"annotated_at,omitempty"`
	ValidatedAt *time.Time        `json:"validated_at,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	AnnotatorID string            `json:"annotator_id,omitempty"`
	ValidatorID string            `json:"validator_id,omitempty"`
	// StatusChangedAt tracks the most recent status transition.
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
	// StatusReason records why the item entered its current status, e.g.
	// the transport error behind a PUBLISH_FAILED transition.
	StatusReason string `json:"status_reason,omitempty"`
}

// TrackConfig describes the per-track payload schema.
type TrackConfig struct {
	// Fields is the ordered list of payload keys the track accepts.
	Fields []string `json:"fields" mapstructure:"fields"`
	// HighLevelKeys marks the subset of Fields surfaced to reviewers first.
	HighLevelKeys []string `json:"high_level_keys" mapstructure:"high_level_keys"`
	// GroupFields is the ordered subset of Fields whose values form the
	// group key.
	GroupFields []string `json:"group_fields" mapstructure:"group_fields"`
	// TextField is the single payload key whose whitespace tokens drive
	// word-weighted completion.
	TextField string `json:"text_field" mapstructure:"text_field"`
}

// ValidatePayload checks a payload against the track's field list. Unknown
// keys are rejected; missing keys are allowed and fall back to zero word
// counts downstream.
func (t TrackConfig) ValidatePayload(payload map[string]string) error {
	allowed := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		allowed[f] = struct{}{}
	}
	for k := range payload {
		if _, ok := allowed[k]; !ok {
			return &SchemaError{Field: k}
		}
	}
	return nil
}

// GroupKeyFor derives the ordered group key for a payload. Missing group
// fields contribute empty values so the item still lands in a group.
func (t TrackConfig) GroupKeyFor(payload map[string]string) GroupKey {
	key := make(GroupKey, len(t.GroupFields))
	for i, f := range t.GroupFields {
		key[i] = payload[f]
	}
	return key
}

// SchemaError reports a payload key outside the track's field list.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return "payload field " + e.Field + " is not in the track schema"
}

// WordCount tokenizes the track's designated text field by whitespace. A
// nil payload or an absent/blank field yields zero; the item is still
// counted in its status bucket.
func (t TrackConfig) WordCount(payload map[string]string) int {
	if payload == nil || t.TextField == "" {
		return 0
	}
	return len(strings.Fields(payload[t.TextField]))
}
