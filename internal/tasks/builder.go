package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
)

// PlaylistBuilder creates the destination playlist and appends matched
// tracks to it in source order, chunked to the platform's batch limit.
type PlaylistBuilder struct {
	dest   services.Destination
	logger *log.Logger
	retry  RetryPolicy
}

// BuildOutcome reports how far a build got. Appended holds the candidate
// IDs confirmed written, in playlist order, even when a later batch failed.
type BuildOutcome struct {
	Playlist *services.Playlist
	Appended []string
}

func NewPlaylistBuilder(dest services.Destination, logger *log.Logger, retry RetryPolicy) *PlaylistBuilder {
	return &PlaylistBuilder{dest: dest, logger: logger, retry: retry}
}

// Build creates the playlist container and appends every matched result.
// Results must already be ordered by source index; unmatched and errored
// entries are skipped. Batches are appended sequentially so a failure
// leaves a prefix of the intended playlist, never a gap.
func (b *PlaylistBuilder) Build(ctx context.Context, name, description string, results []models.MatchResult, progress *progressGate) (*BuildOutcome, error) {
	ids := make([]string, 0, len(results))
	for _, result := range results {
		if result.Outcome == models.OutcomeMatched && result.Candidate != nil {
			ids = append(ids, result.Candidate.ID)
		}
	}

	var playlist *services.Playlist
	err := withRetry(ctx, b.logger, b.retry, "create playlist", func(ctx context.Context) error {
		created, err := b.dest.CreatePlaylist(ctx, name, description)
		if err != nil {
			return err
		}
		playlist = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create playlist %q: %w", name, err)
	}

	b.logger.Info("created destination playlist", "name", name, "id", playlist.ID)

	outcome := &BuildOutcome{Playlist: playlist, Appended: make([]string, 0, len(ids))}
	batchSize := b.dest.MaxAppendBatch()
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		batch := ids[start:end]
		err := withRetry(ctx, b.logger, b.retry, "append tracks", func(ctx context.Context) error {
			return b.dest.AppendTracks(ctx, playlist.ID, batch)
		})
		if err != nil {
			return outcome, fmt.Errorf("append batch %d-%d: %w", start, end-1, err)
		}

		outcome.Appended = append(outcome.Appended, batch...)
		progress.send(buildUpdate(len(outcome.Appended), len(ids)))
	}

	return outcome, nil
}
