// Package archive writes point-in-time reporting snapshots to blob storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// MonthlyReport is the archived form of a track's monthly roll-up.
type MonthlyReport struct {
	TrackID     int             `json:"track_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Counts      []MonthlyBucket `json:"counts"`
	Groups      []GroupSnapshot `json:"groups,omitempty"`
}

// MonthlyBucket is one month/status cell of the report.
type MonthlyBucket struct {
	Month  time.Time `json:"month"`
	Status string    `json:"status"`
	Count  int64     `json:"count"`
}

// GroupSnapshot captures a group's resolved state at archive time.
type GroupSnapshot struct {
	GroupKey       []string `json:"group_key"`
	ResolvedStatus string   `json:"resolved_status"`
	TotalWordCount int      `json:"total_word_count"`
	Items          int      `json:"items"`
}

// Archiver renders reports and stores them durably.
type Archiver struct {
	blobs pipeline.BlobStore
	clock pipeline.Clock
}

// New creates an Archiver writing through the given blob store.
func New(blobs pipeline.BlobStore, clock pipeline.Clock) (*Archiver, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Archiver{blobs: blobs, clock: clock}, nil
}

// ArchiveMonthly stores a monthly report for one track and returns the
// blob URI. Object paths are stable per generation time, so re-running an
// archive overwrites the same day's report rather than accumulating copies.
func (a *Archiver) ArchiveMonthly(
	ctx context.Context,
	trackID int,
	counts []store.MonthlyCount,
	groups []pipeline.Group,
) (string, error) {
	now := a.clock.Now().UTC()

	report := MonthlyReport{
		TrackID:     trackID,
		GeneratedAt: now,
		Counts:      make([]MonthlyBucket, 0, len(counts)),
	}
	for _, c := range counts {
		report.Counts = append(report.Counts, MonthlyBucket{
			Month:  c.Month,
			Status: string(c.Status),
			Count:  c.Count,
		})
	}
	for _, g := range groups {
		report.Groups = append(report.Groups, GroupSnapshot{
			GroupKey:       []string(g.Key),
			ResolvedStatus: string(g.ResolvedStatus),
			TotalWordCount: g.TotalWordCount,
			Items:          len(g.ItemIDs),
		})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode monthly report: %w", err)
	}

	path := fmt.Sprintf("reports/track-%d/%s/monthly.json", trackID, now.Format("2006-01-02"))
	uri, err := a.blobs.PutObject(ctx, path, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("store monthly report: %w", err)
	}
	return uri, nil
}
