package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pendingctl/pkg/fuzzy"
	"pendingctl/pkg/paginate"
)

// Run statuses reported to the journal and metrics.
const (
	RunStatusOK          = "ok"
	RunStatusPartial     = "partial"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// SyncResult summarizes one AddToPending run.
type SyncResult struct {
	RunID         string
	Source        CollectionRef
	PendingBefore int
	Candidates    int
	AlreadySaved  int
	Removed       *MutationReport
	Added         *MutationReport
	Duration      time.Duration
}

// Err joins the chunk errors of both mutations.
func (r *SyncResult) Err() error {
	var errs []error
	if r.Removed != nil {
		errs = append(errs, r.Removed.Err())
	}
	if r.Added != nil {
		errs = append(errs, r.Added.Err())
	}
	return errors.Join(errs...)
}

// Syncer moves tracks from a collection into the pending playlist.
type Syncer struct {
	pendingPlaylistID string
	client            SpotifyClient
	pending           DedupStore
	mutator           *Mutator
	journal           Journal
	recorder          Recorder
	normalizer        *fuzzy.Normalizer
	logger            *zap.Logger
}

// NewSyncer creates a syncer. journal and recorder may be nil.
func NewSyncer(
	pendingPlaylistID string,
	client SpotifyClient,
	pending DedupStore,
	mutator *Mutator,
	journal Journal,
	recorder Recorder,
	logger *zap.Logger,
) *Syncer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Syncer{
		pendingPlaylistID: pendingPlaylistID,
		client:            client,
		pending:           pending,
		mutator:           mutator,
		journal:           journal,
		recorder:          recorder,
		normalizer:        fuzzy.NewNormalizer(),
		logger:            logger,
	}
}

// AddToPending adds the tracks of source that are neither in the pending
// playlist nor saved in the library. With removeSaved, pending tracks that
// are already saved are removed first.
//
// Read failures and saved-status mismatches abort the run with an error.
// Rejected mutation chunks do not; they are listed in the returned reports.
func (s *Syncer) AddToPending(ctx context.Context, source CollectionRef, removeSaved bool) (*SyncResult, error) {
	if s.pendingPlaylistID == "" {
		return nil, ErrNoPendingPlaylist
	}

	start := time.Now()
	result := &SyncResult{RunID: uuid.NewString(), Source: source}

	logger := s.logger.With(zap.String("runID", result.RunID), zap.Stringer("source", source))
	logger.Info("Starting sync", zap.Bool("removeSaved", removeSaved))

	if s.journal != nil {
		if err := s.journal.StartRun(context.WithoutCancel(ctx), result.RunID, source.String()); err != nil {
			logger.Warn("Failed to journal run start", zap.Error(err))
		}
	}

	err := s.addToPending(ctx, source, removeSaved, result, logger)
	result.Duration = time.Since(start)

	status := runStatus(err, result)
	if s.journal != nil {
		if jerr := s.journal.FinishRun(context.WithoutCancel(ctx), result.RunID, status); jerr != nil {
			logger.Warn("Failed to journal run finish", zap.Error(jerr))
		}
	}
	s.recorder.RecordRun(status, result.Duration)

	if err != nil {
		logger.Error("Sync aborted", zap.String("status", status), zap.Error(err))
		return result, err
	}

	logger.Info("Sync finished",
		zap.String("status", status),
		zap.Int("candidates", result.Candidates),
		zap.Int("alreadySaved", result.AlreadySaved),
		zap.Int("added", result.Added.Succeeded()),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (s *Syncer) addToPending(
	ctx context.Context,
	source CollectionRef,
	removeSaved bool,
	result *SyncResult,
	logger *zap.Logger,
) error {
	pendingIDs, err := s.readIDs(ctx, Playlist(s.pendingPlaylistID))
	if err != nil {
		return fmt.Errorf("failed to read pending playlist: %w", err)
	}
	result.PendingBefore = len(pendingIDs)
	s.recorder.RecordTracks("pending", len(pendingIDs))
	logger.Debug("Read pending playlist", zap.Int("tracks", len(pendingIDs)))

	if removeSaved {
		pendingIDs, err = s.removeSaved(ctx, pendingIDs, result, logger)
		if err != nil {
			return err
		}
	}

	s.pending.Load(pendingIDs)
	s.recorder.SetPendingSize(s.pending.Size())

	var readErr error
	slots := paginate.Values(s.client.TrackSlots(ctx, source, paginate.Strict), &readErr)
	candidates := FilterCandidates(slots, s.pending)
	if readErr != nil {
		return fmt.Errorf("failed to read %s: %w", source, readErr)
	}
	result.Candidates = len(candidates)
	s.recorder.RecordTracks("candidate", len(candidates))

	saved, err := SavedStatus(ctx, s.client, candidates)
	if err != nil {
		return err
	}
	unsaved, alreadySaved, err := PartitionBySaved(candidates, saved)
	if err != nil {
		return err
	}
	result.AlreadySaved = len(alreadySaved)
	s.recorder.RecordTracks("saved", len(alreadySaved))

	result.Added = s.mutator.Add(ctx, s.pendingPlaylistID, unsaved)
	s.recordReport(ctx, result.RunID, result.Added, logger)

	for _, id := range result.Added.SucceededIDs() {
		s.pending.Add(id)
	}
	s.recorder.SetPendingSize(s.pending.Size())

	return ctx.Err()
}

// removeSaved removes the saved tracks from the pending playlist and returns
// the pending ids that remain.
func (s *Syncer) removeSaved(
	ctx context.Context,
	pendingIDs []string,
	result *SyncResult,
	logger *zap.Logger,
) ([]string, error) {
	// Removal deletes every occurrence, so each id is looked up and sent once.
	unique := slices.Clone(pendingIDs)
	seen := make(IDSet, len(unique))
	unique = slices.DeleteFunc(unique, func(id string) bool {
		if seen.Has(id) {
			return true
		}
		seen[id] = struct{}{}
		return false
	})

	saved, err := SavedStatus(ctx, s.client, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending tracks: %w", err)
	}
	_, alreadySaved, err := PartitionBySaved(unique, saved)
	if err != nil {
		return nil, err
	}

	result.Removed = s.mutator.Remove(ctx, s.pendingPlaylistID, alreadySaved)
	s.recordReport(ctx, result.RunID, result.Removed, logger)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	removed := NewIDSet(result.Removed.SucceededIDs()...)
	return slices.DeleteFunc(pendingIDs, removed.Has), nil
}

// readIDs returns the well-formed ids of every slot of ref, in order.
func (s *Syncer) readIDs(ctx context.Context, ref CollectionRef) ([]string, error) {
	var ids []string
	for track, err := range s.client.TrackSlots(ctx, ref, paginate.Strict) {
		if err != nil {
			return nil, err
		}
		if track != nil && IsValidID(track.ID) {
			ids = append(ids, track.ID)
		}
	}
	return ids, nil
}

func (s *Syncer) recordReport(ctx context.Context, runID string, report *MutationReport, logger *zap.Logger) {
	if s.journal == nil || report == nil || len(report.Chunks) == 0 {
		return
	}
	if err := s.journal.RecordReport(context.WithoutCancel(ctx), runID, report); err != nil {
		logger.Warn("Failed to journal mutation report",
			zap.String("op", string(report.Op)),
			zap.Error(err))
	}
}

func runStatus(err error, result *SyncResult) string {
	switch {
	case errors.Is(err, context.Canceled):
		return RunStatusInterrupted
	case err != nil:
		return RunStatusFailed
	case result.Err() != nil:
		return RunStatusPartial
	default:
		return RunStatusOK
	}
}
