package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestFilterCandidates(t *testing.T) {
	tests := []struct {
		name     string
		slots    []*Track
		exclude  ExclusionSet
		expected []string
	}{
		{
			name:     "Duplicates are kept, excluded ids dropped",
			slots:    tracks("a", "b", "c", "a"),
			exclude:  NewIDSet("b"),
			expected: []string{"a", "c", "a"},
		},
		{
			name:     "Null slots and local tracks are skipped",
			slots:    []*Track{nil, {ID: ""}, {ID: "a"}, nil, {ID: "local-file"}, {ID: "b"}},
			exclude:  NewIDSet(),
			expected: []string{"a", "b"},
		},
		{
			name:     "Nil exclusion set excludes nothing",
			slots:    tracks("a", "b"),
			exclude:  nil,
			expected: []string{"a", "b"},
		},
		{
			name:     "Everything excluded",
			slots:    tracks("a", "b"),
			exclude:  NewIDSet("a", "b"),
			expected: nil,
		},
		{
			name:     "Empty input",
			slots:    nil,
			exclude:  NewIDSet("a"),
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FilterCandidates(slices.Values(tt.slots), tt.exclude)
			if !slices.Equal(result, tt.expected) {
				t.Errorf("FilterCandidates() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSavedStatus_Chunked(t *testing.T) {
	ids := makeIDs("t", 120)
	checker := &mockSpotifyClient{saved: map[string]bool{"t0": true, "t60": true, "t119": true}}

	saved, err := SavedStatus(context.Background(), checker, ids)
	if err != nil {
		t.Fatalf("SavedStatus() error = %v", err)
	}

	if len(saved) != len(ids) {
		t.Fatalf("Expected %d answers, got %d", len(ids), len(saved))
	}

	var sizes []int
	for _, call := range checker.savedCalls {
		sizes = append(sizes, len(call))
	}
	if !slices.Equal(sizes, []int{50, 50, 20}) {
		t.Errorf("Expected lookups of 50, 50 and 20 ids, got %v", sizes)
	}

	for i, id := range ids {
		if saved[i] != checker.saved[id] {
			t.Errorf("saved[%d] (%s) = %v, want %v", i, id, saved[i], checker.saved[id])
		}
	}
}

func TestSavedStatus_LengthMismatch(t *testing.T) {
	checker := &mockSpotifyClient{savedShortBy: 1}

	saved, err := SavedStatus(context.Background(), checker, makeIDs("t", 10))
	if !errors.Is(err, ErrSavedStatusMismatch) {
		t.Fatalf("Expected ErrSavedStatusMismatch, got %v", err)
	}
	if saved != nil {
		t.Errorf("Expected no answers on mismatch, got %v", saved)
	}
}

func TestSavedStatus_CheckerError(t *testing.T) {
	wantErr := errors.New("boom")
	checker := &mockSpotifyClient{savedErr: wantErr}

	_, err := SavedStatus(context.Background(), checker, makeIDs("t", 3))
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected wrapped checker error, got %v", err)
	}
}

func TestSavedStatus_Empty(t *testing.T) {
	checker := &mockSpotifyClient{}

	saved, err := SavedStatus(context.Background(), checker, nil)
	if err != nil {
		t.Fatalf("SavedStatus() error = %v", err)
	}
	if len(saved) != 0 || len(checker.savedCalls) != 0 {
		t.Errorf("Expected no lookups for no ids, got %d calls", len(checker.savedCalls))
	}
}

func TestPartitionBySaved(t *testing.T) {
	unsaved, saved, err := PartitionBySaved(
		[]string{"a", "b", "c", "d"},
		[]bool{false, true, false, true},
	)
	if err != nil {
		t.Fatalf("PartitionBySaved() error = %v", err)
	}

	if !slices.Equal(unsaved, []string{"a", "c"}) {
		t.Errorf("unsaved = %v, want [a c]", unsaved)
	}
	if !slices.Equal(saved, []string{"b", "d"}) {
		t.Errorf("saved = %v, want [b d]", saved)
	}

	if _, _, err := PartitionBySaved([]string{"a"}, nil); !errors.Is(err, ErrSavedStatusMismatch) {
		t.Errorf("Expected ErrSavedStatusMismatch for unaligned flags, got %v", err)
	}
}

func tracks(ids ...string) []*Track {
	result := make([]*Track, 0, len(ids))
	for _, id := range ids {
		result = append(result, &Track{ID: id, Name: "Song " + id})
	}
	return result
}

func makeIDs(prefix string, n int) []string {
	ids := make([]string, 0, n)
	for i := range n {
		ids = append(ids, fmt.Sprintf("%s%d", prefix, i))
	}
	return ids
}
