package core

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pendingctl/pkg/chunk"
)

// ChunkOutcome is the result of one bulk call.
type ChunkOutcome struct {
	Index int
	IDs   []string
	Err   error
}

// MutationReport lists the outcome of every chunk of one bulk mutation.
type MutationReport struct {
	Op         MutationOp
	PlaylistID string
	Chunks     []ChunkOutcome
}

// Total returns the number of ids the mutation was asked to apply.
func (r *MutationReport) Total() int {
	n := 0
	for i := range r.Chunks {
		n += len(r.Chunks[i].IDs)
	}
	return n
}

// Succeeded returns the number of ids in chunks the remote accepted.
func (r *MutationReport) Succeeded() int {
	n := 0
	for i := range r.Chunks {
		if r.Chunks[i].Err == nil {
			n += len(r.Chunks[i].IDs)
		}
	}
	return n
}

// Failed returns the number of ids in rejected or skipped chunks.
func (r *MutationReport) Failed() int {
	return r.Total() - r.Succeeded()
}

// SucceededIDs returns the ids of accepted chunks in submission order.
func (r *MutationReport) SucceededIDs() []string {
	var ids []string
	for i := range r.Chunks {
		if r.Chunks[i].Err == nil {
			ids = append(ids, r.Chunks[i].IDs...)
		}
	}
	return ids
}

// FailedIDs returns the ids of rejected or skipped chunks in submission order.
func (r *MutationReport) FailedIDs() []string {
	var ids []string
	for i := range r.Chunks {
		if r.Chunks[i].Err != nil {
			ids = append(ids, r.Chunks[i].IDs...)
		}
	}
	return ids
}

// FailedChunks returns the outcomes that carry an error.
func (r *MutationReport) FailedChunks() []ChunkOutcome {
	var failed []ChunkOutcome
	for i := range r.Chunks {
		if r.Chunks[i].Err != nil {
			failed = append(failed, r.Chunks[i])
		}
	}
	return failed
}

// Err joins the chunk errors, or returns nil when every chunk succeeded.
func (r *MutationReport) Err() error {
	var errs []error
	for i := range r.Chunks {
		if r.Chunks[i].Err != nil {
			errs = append(errs, fmt.Errorf("%s chunk %d (%d ids): %w",
				r.Op, r.Chunks[i].Index, len(r.Chunks[i].IDs), r.Chunks[i].Err))
		}
	}
	return errors.Join(errs...)
}

// Mutator applies bulk playlist mutations chunk by chunk. A rejected chunk is
// logged and recorded in the report; the following chunks are still sent.
// Nothing is retried.
type Mutator struct {
	writer   PlaylistWriter
	limiter  *rate.Limiter
	recorder Recorder
	logger   *zap.Logger
}

// NewMutator creates a mutator. limiter and recorder may be nil.
func NewMutator(writer PlaylistWriter, limiter *rate.Limiter, recorder Recorder, logger *zap.Logger) *Mutator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Mutator{
		writer:   writer,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger,
	}
}

// Add appends ids to the playlist.
func (m *Mutator) Add(ctx context.Context, playlistID string, ids []string) *MutationReport {
	return m.apply(ctx, OpAdd, playlistID, ids)
}

// Remove deletes every occurrence of ids from the playlist.
func (m *Mutator) Remove(ctx context.Context, playlistID string, ids []string) *MutationReport {
	return m.apply(ctx, OpRemove, playlistID, ids)
}

func (m *Mutator) apply(ctx context.Context, op MutationOp, playlistID string, ids []string) *MutationReport {
	report := &MutationReport{Op: op, PlaylistID: playlistID}
	if len(ids) == 0 {
		return report
	}

	m.logger.Info("Applying playlist mutation",
		zap.String("op", string(op)),
		zap.String("playlistID", playlistID),
		zap.Int("tracks", len(ids)),
		zap.Int("chunks", chunk.Count(len(ids), MaxMutationBatch)))

	index := 0
	for batch := range chunk.Slice(ids, MaxMutationBatch) {
		outcome := ChunkOutcome{Index: index, IDs: slices.Clone(batch)}
		outcome.Err = m.submit(ctx, op, playlistID, outcome.IDs)

		if outcome.Err != nil {
			m.logger.Warn("Playlist mutation chunk failed, continuing",
				zap.String("op", string(op)),
				zap.String("playlistID", playlistID),
				zap.Int("chunk", index),
				zap.Int("tracks", len(batch)),
				zap.Error(outcome.Err))
		}

		m.recorder.RecordChunk(op, outcome.Err == nil, len(batch))
		report.Chunks = append(report.Chunks, outcome)
		index++
	}

	m.logger.Info("Playlist mutation finished",
		zap.String("op", string(op)),
		zap.String("playlistID", playlistID),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()))

	return report
}

func (m *Mutator) submit(ctx context.Context, op MutationOp, playlistID string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	switch op {
	case OpAdd:
		return m.writer.AddItems(ctx, playlistID, ids)
	case OpRemove:
		return m.writer.RemoveItems(ctx, playlistID, ids)
	default:
		return fmt.Errorf("unknown mutation op %q", op)
	}
}
