// Package sweeper is the offline near-duplicate pass over the stored
// hashes. It complements the ingest-time check: records that slipped in
// before a threshold change, or through concurrent runs, get grouped and
// marked here.
package sweeper

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"

	"trendgallery/models"
	"trendgallery/phash"
)

// SweepStore is the slice of the image store the sweeper needs.
type SweepStore interface {
	FindHashed(ctx context.Context) ([]models.ImageRecord, error)
	MarkDuplicate(ctx context.Context, id, of bson.ObjectID, distance int) error
	UnmarkAllDuplicates(ctx context.Context) (int64, error)
}

// Group is one original with the near-duplicates found behind it.
type Group struct {
	OriginalID bson.ObjectID `json:"original_id"`
	Duplicates []Duplicate   `json:"duplicates"`
}

// Duplicate is one marked record inside a group.
type Duplicate struct {
	ID       bson.ObjectID `json:"id"`
	Distance int           `json:"distance"`
}

// Summary is the outcome of one sweep.
type Summary struct {
	Scanned int     `json:"scanned"`
	Marked  int     `json:"marked"`
	Groups  []Group `json:"groups"`
}

// Sweeper groups and marks near-duplicate records.
type Sweeper struct {
	store     SweepStore
	threshold int
}

func New(store SweepStore) *Sweeper {
	return &Sweeper{store: store, threshold: phash.DefaultThreshold}
}

// SetThreshold overrides the Hamming-distance cutoff. Valid values are 0-10.
func (s *Sweeper) SetThreshold(threshold int) {
	if threshold >= 0 && threshold <= 10 {
		s.threshold = threshold
	}
}

// Sweep scans hashed records in insert order and marks every record whose
// hash sits within the threshold of an earlier one. The earliest record of
// a group is the original; duplicates always point at it, never at each
// other, so re-sweeping a converged store is a no-op. With dryRun set the
// grouping is computed and returned but nothing is written.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (Summary, error) {
	var sum Summary

	records, err := s.store.FindHashed(ctx)
	if err != nil {
		return sum, fmt.Errorf("load hashed records: %w", err)
	}
	sum.Scanned = len(records)

	taken := make([]bool, len(records))
	for i := range records {
		if taken[i] || records[i].IsDuplicate {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		group := Group{OriginalID: records[i].ID}
		for j := i + 1; j < len(records); j++ {
			if taken[j] || records[j].IsDuplicate {
				continue
			}
			d, err := phash.Distance(records[i].PHash, records[j].PHash)
			if err != nil {
				continue
			}
			if d > s.threshold {
				continue
			}

			taken[j] = true
			group.Duplicates = append(group.Duplicates, Duplicate{ID: records[j].ID, Distance: d})
			if !dryRun {
				if err := s.store.MarkDuplicate(ctx, records[j].ID, records[i].ID, d); err != nil {
					return sum, fmt.Errorf("mark %s: %w", records[j].ID.Hex(), err)
				}
			}
			sum.Marked++
		}

		if len(group.Duplicates) > 0 {
			sum.Groups = append(sum.Groups, group)
		}
	}

	log.Printf("sweeper: scanned=%d marked=%d groups=%d dry_run=%v", sum.Scanned, sum.Marked, len(sum.Groups), dryRun)
	return sum, nil
}

// Unmark clears every duplicate flag, typically before re-sweeping with a
// different threshold.
func (s *Sweeper) Unmark(ctx context.Context) (int64, error) {
	return s.store.UnmarkAllDuplicates(ctx)
}
