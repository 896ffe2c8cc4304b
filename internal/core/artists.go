package core

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"go.uber.org/zap"

	"pendingctl/pkg/chunk"
	"pendingctl/pkg/paginate"
)

// artistEntry is one listed name and every catalog id merged into it.
type artistEntry struct {
	name string
	ids  []string
}

// PlaylistArtists returns the unique artist names of ref in order of first
// appearance. Names that normalize to the same key count as one artist and
// the first spelling wins. With a non-nil genre, an artist is returned when a
// genre of any of its merged catalog ids is matched by it.
//
// Pages the remote fails to return end the listing early instead of failing it.
func (s *Syncer) PlaylistArtists(ctx context.Context, ref CollectionRef, genre *regexp.Regexp) ([]string, error) {
	var entries []*artistEntry
	byKey := make(map[string]*artistEntry)
	seenIDs := make(map[string]struct{})

	for track, err := range s.client.TrackSlots(ctx, ref, paginate.Lenient) {
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", ref, err)
		}
		if track == nil {
			continue
		}
		for _, artist := range track.Artists {
			if artist.ID != "" {
				if _, ok := seenIDs[artist.ID]; ok {
					continue
				}
				seenIDs[artist.ID] = struct{}{}
			}

			key := s.normalizer.ArtistKey(artist.Name)
			if key == "" {
				continue
			}

			entry, ok := byKey[key]
			if !ok {
				entry = &artistEntry{name: artist.Name}
				byKey[key] = entry
				entries = append(entries, entry)
			}
			if IsValidID(artist.ID) {
				entry.ids = append(entry.ids, artist.ID)
			}
		}
	}

	s.logger.Debug("Collected playlist artists",
		zap.Stringer("collection", ref),
		zap.Int("artists", len(entries)))

	if genre != nil {
		var err error
		entries, err = s.filterByGenre(ctx, entries, genre)
		if err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.name)
	}
	return names, nil
}

// filterByGenre keeps the entries with a genre matched by pattern. Artists
// without a catalog id have no genres and are dropped.
func (s *Syncer) filterByGenre(ctx context.Context, entries []*artistEntry, pattern *regexp.Regexp) ([]*artistEntry, error) {
	var ids []string
	for _, entry := range entries {
		ids = append(ids, entry.ids...)
	}

	genres := make(map[string][]string, len(ids))
	for batch := range chunk.Slice(ids, MaxArtistBatch) {
		found, err := s.client.ArtistGenres(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to get artist genres: %w", err)
		}
		for id, g := range found {
			genres[id] = g
		}
	}

	var matched []*artistEntry
	for _, entry := range entries {
		if slices.ContainsFunc(entry.ids, func(id string) bool {
			return slices.ContainsFunc(genres[id], pattern.MatchString)
		}) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}
