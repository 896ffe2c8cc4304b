package core

import (
	"context"
	"fmt"
	"iter"

	"pendingctl/pkg/chunk"
)

const (
	// MaxSavedCheckBatch is the Spotify limit for library membership lookups
	MaxSavedCheckBatch = 50
	// MaxMutationBatch is the Spotify limit for playlist add/remove calls
	MaxMutationBatch = 100
	// MaxArtistBatch is the Spotify limit for several-artists lookups
	MaxArtistBatch = 50
)

// FilterCandidates returns, in order, the ids of the non-nil slots whose id is
// well formed and not in exclude. A nil exclude excludes nothing.
//
// Repeated ids among the slots are all kept; only membership in exclude is
// checked.
func FilterCandidates(slots iter.Seq[*Track], exclude ExclusionSet) []string {
	var ids []string
	for track := range slots {
		if track == nil || !IsValidID(track.ID) {
			continue
		}
		if exclude != nil && exclude.Has(track.ID) {
			continue
		}
		ids = append(ids, track.ID)
	}
	return ids
}

// SavedStatus asks checker which ids are saved in the user's library, in
// batches of MaxSavedCheckBatch. The result is aligned with ids. An answer of
// the wrong length fails the whole lookup with ErrSavedStatusMismatch.
func SavedStatus(ctx context.Context, checker SavedChecker, ids []string) ([]bool, error) {
	saved := make([]bool, 0, len(ids))

	for batch := range chunk.Slice(ids, MaxSavedCheckBatch) {
		answer, err := checker.CheckSaved(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to check saved tracks: %w", err)
		}
		if len(answer) != len(batch) {
			return nil, fmt.Errorf("%w: requested %d ids, got %d answers",
				ErrSavedStatusMismatch, len(batch), len(answer))
		}
		saved = append(saved, answer...)
	}

	if len(saved) != len(ids) {
		return nil, fmt.Errorf("%w: requested %d ids, got %d answers",
			ErrSavedStatusMismatch, len(ids), len(saved))
	}

	return saved, nil
}

// PartitionBySaved splits ids by the aligned saved flags, preserving order.
func PartitionBySaved(ids []string, saved []bool) (unsaved, alreadySaved []string, err error) {
	if len(ids) != len(saved) {
		return nil, nil, fmt.Errorf("%w: %d ids, %d flags", ErrSavedStatusMismatch, len(ids), len(saved))
	}

	for i, id := range ids {
		if saved[i] {
			alreadySaved = append(alreadySaved, id)
		} else {
			unsaved = append(unsaved, id)
		}
	}
	return unsaved, alreadySaved, nil
}
