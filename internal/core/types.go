package core

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"pendingctl/pkg/paginate"
)

type Artist struct {
	ID   string
	Name string
}

// Track is a catalog track. An empty ID marks a local or restricted track
// that has no catalog id.
type Track struct {
	ID      string
	Name    string
	Artists []Artist
	Album   string
}

// CollectionKind tags what a CollectionRef points at.
type CollectionKind int

const (
	// KindPlaylist is a user playlist
	KindPlaylist CollectionKind = iota
	// KindAlbum is a catalog album
	KindAlbum
)

func (k CollectionKind) String() string {
	switch k {
	case KindPlaylist:
		return "playlist"
	case KindAlbum:
		return "album"
	default:
		return fmt.Sprintf("CollectionKind(%d)", int(k))
	}
}

// CollectionRef identifies a playlist or album.
type CollectionRef struct {
	Kind CollectionKind
	ID   string
}

// Playlist returns a reference to the playlist with the given id.
func Playlist(id string) CollectionRef {
	return CollectionRef{Kind: KindPlaylist, ID: id}
}

// Album returns a reference to the album with the given id.
func Album(id string) CollectionRef {
	return CollectionRef{Kind: KindAlbum, ID: id}
}

func (r CollectionRef) String() string {
	return "spotify:" + r.Kind.String() + ":" + r.ID
}

var (
	collectionURIRegex = regexp.MustCompile(`^spotify:(playlist|album):([a-zA-Z0-9]+)$`)
	collectionURLRegex = regexp.MustCompile(`^(?:https?://)?open\.spotify\.com/(?:intl-[a-zA-Z-]+/)?(playlist|album)/([a-zA-Z0-9]+)`)
	catalogIDRegex     = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// ParseCollectionRef resolves a user-supplied collection identifier. It accepts
// spotify:playlist:<id> and spotify:album:<id> URIs, open.spotify.com URLs and
// bare ids. Bare ids are taken to be playlists.
func ParseCollectionRef(raw string) (CollectionRef, error) {
	raw = strings.TrimSpace(raw)

	matches := collectionURIRegex.FindStringSubmatch(raw)
	if matches == nil {
		matches = collectionURLRegex.FindStringSubmatch(raw)
	}
	if matches != nil {
		if matches[1] == "album" {
			return Album(matches[2]), nil
		}
		return Playlist(matches[2]), nil
	}

	if catalogIDRegex.MatchString(raw) {
		return Playlist(raw), nil
	}

	return CollectionRef{}, fmt.Errorf("%w: %q", ErrInvalidCollectionRef, raw)
}

// IsValidID reports whether id looks like a catalog id (non-empty base-62).
func IsValidID(id string) bool {
	return catalogIDRegex.MatchString(id)
}

// MutationOp names a bulk playlist mutation.
type MutationOp string

const (
	OpAdd    MutationOp = "add"
	OpRemove MutationOp = "remove"
)

// ExclusionSet answers membership queries during candidate filtering.
type ExclusionSet interface {
	Has(trackID string) bool
}

// IDSet is a plain in-memory ExclusionSet.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(trackID string) bool {
	_, ok := s[trackID]
	return ok
}

type DedupStore interface {
	Has(trackID string) bool
	Add(trackID string)
	Remove(trackID string)
	Load(trackIDs []string)
	Size() int
	Clear()
}

// TrackSource streams the slots of a collection. A nil slot is a playlist
// entry whose track is unavailable.
type TrackSource interface {
	TrackSlots(ctx context.Context, ref CollectionRef, mode paginate.Mode) iter.Seq2[*Track, error]
}

// SavedChecker reports library membership for at most MaxSavedCheckBatch ids.
// The answer is aligned with ids.
type SavedChecker interface {
	CheckSaved(ctx context.Context, ids []string) ([]bool, error)
}

// PlaylistWriter applies bulk mutations of at most MaxMutationBatch ids.
type PlaylistWriter interface {
	AddItems(ctx context.Context, playlistID string, ids []string) error
	RemoveItems(ctx context.Context, playlistID string, ids []string) error
}

// ArtistDirectory looks up genres for at most MaxArtistBatch artist ids.
type ArtistDirectory interface {
	ArtistGenres(ctx context.Context, ids []string) (map[string][]string, error)
}

type SpotifyClient interface {
	TrackSource
	SavedChecker
	PlaylistWriter
	ArtistDirectory
}

// Recorder receives pipeline measurements.
type Recorder interface {
	RecordChunk(op MutationOp, ok bool, size int)
	RecordTracks(stage string, count int)
	SetPendingSize(size int)
	RecordRun(status string, duration time.Duration)
}

// Journal persists mutation outcomes of each run.
type Journal interface {
	StartRun(ctx context.Context, runID, source string) error
	RecordReport(ctx context.Context, runID string, report *MutationReport) error
	FinishRun(ctx context.Context, runID, status string) error
}

type nopRecorder struct{}

func (nopRecorder) RecordChunk(MutationOp, bool, int) {}
func (nopRecorder) RecordTracks(string, int)         {}
func (nopRecorder) SetPendingSize(int)               {}
func (nopRecorder) RecordRun(string, time.Duration)  {}
