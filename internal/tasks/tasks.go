package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
)

// RateLimiter grants or denies a transfer attempt for an identity. The
// engine consults it exactly once per transfer, before any upstream call.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, identity string) (models.QuotaDecision, error)
}

// TransferError is the typed failure returned for input, access, and
// quota failures. Stage records how far the transfer got.
type TransferError struct {
	Stage      models.TransferStatus
	RetryAfter time.Duration
	Err        error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed while %s: %v", e.Stage, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TransferRequest describes one playlist transfer.
type TransferRequest struct {
	SourceURL    string
	Destination  models.Platform
	Identity     string
	PlaylistName string                // optional override for the destination playlist name
	Progress     chan<- ProgressUpdate // optional, never blocked on or sent to after TransferPlaylist returns
}

// TransferEngine orchestrates a playlist transfer end to end: resolve the
// source URL, extract its tracks, match them against the destination
// catalog concurrently, then build the destination playlist.
type TransferEngine struct {
	sources map[models.Platform]services.SourceCatalog
	dests   map[models.Platform]services.Destination
	oracle  services.Disambiguator
	limiter RateLimiter
	logger  *log.Logger
	cfg     shared.TransferConfig
}

// EngineOpts collects the engine's collaborators. Oracle may be nil.
type EngineOpts struct {
	Sources map[models.Platform]services.SourceCatalog
	Dests   map[models.Platform]services.Destination
	Oracle  services.Disambiguator
	Limiter RateLimiter
	Logger  *log.Logger
	Config  shared.TransferConfig
}

func NewTransferEngine(opts EngineOpts) *TransferEngine {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &TransferEngine{
		sources: opts.Sources,
		dests:   opts.Dests,
		oracle:  opts.Oracle,
		limiter: opts.Limiter,
		logger:  logger,
		cfg:     opts.Config,
	}
}

// TransferPlaylist runs one transfer. On success or partial success the
// report is returned; input, access, and quota failures return a
// *TransferError. A build failure after partial appends returns both the
// report (recording the confirmed appends) and the error.
func (e *TransferEngine) TransferPlaylist(ctx context.Context, req TransferRequest) (*models.TransferReport, error) {
	progress := newProgressGate(req.Progress)
	defer progress.revoke()

	ref, source, dest, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	progress.send(resolveUpdate(fmt.Sprintf("resolved %s playlist %s", ref.Platform, ref.ID)))

	if err := e.consumeQuota(ctx, req.Identity); err != nil {
		return nil, err
	}

	report := &models.TransferReport{
		Source:      ref,
		Destination: req.Destination,
		Status:      models.StatusExtracting,
		Appended:    []string{},
	}

	playlist, tracks, err := e.extract(ctx, source, ref.ID)
	if err != nil {
		return nil, &TransferError{Stage: models.StatusExtracting, Err: err}
	}

	report.SourceName = playlist.Name
	progress.send(fetchUpdate(len(tracks)))
	e.logger.Info("extracted source playlist", "name", playlist.Name, "tracks", len(tracks))

	report.Status = models.StatusMatching
	report.Results = e.match(ctx, dest, tracks, progress)
	report.Tally()

	if report.Counts.Matched == 0 {
		e.logger.Warn("no tracks matched, skipping playlist creation", "total", len(tracks))
		report.Status = models.StatusCompleted
		progress.send(finalizeUpdate("no tracks matched"))
		return report, nil
	}

	report.Status = models.StatusBuilding
	name := req.PlaylistName
	if name == "" {
		name = playlist.Name
	}

	builder := NewPlaylistBuilder(dest, e.logger, PolicyFromConfig(e.cfg))
	description := fmt.Sprintf("Transferred from %s via plx", source.Name())
	outcome, buildErr := builder.Build(ctx, name, description, report.Results, progress)

	if outcome != nil {
		report.Appended = outcome.Appended
		if outcome.Playlist != nil {
			report.PlaylistID = outcome.Playlist.ID
			report.PlaylistName = outcome.Playlist.Name
			report.PlaylistURL = dest.PlaylistURL(outcome.Playlist.ID)
		}
	}

	if buildErr != nil {
		report.Status = models.StatusFailed
		return report, &TransferError{Stage: models.StatusBuilding, Err: buildErr}
	}

	report.Status = models.StatusCompleted
	progress.send(finalizeUpdate(fmt.Sprintf("transferred %d/%d tracks", report.Counts.Matched, report.Counts.Total)))
	e.logger.Info("transfer complete",
		"playlist", report.PlaylistName,
		"matched", report.Counts.Matched,
		"unmatched", report.Counts.Unmatched,
		"errored", report.Counts.Errored,
	)

	return report, nil
}

func (e *TransferEngine) resolve(req TransferRequest) (models.PlaylistRef, services.SourceCatalog, services.Destination, error) {
	ref, err := ResolvePlaylistURL(req.SourceURL)
	if err != nil {
		return models.PlaylistRef{}, nil, nil, &TransferError{Stage: models.StatusResolving, Err: err}
	}

	if ref.Platform == req.Destination {
		err := fmt.Errorf("%w: source and destination are both %s", shared.ErrInvalidArgument, ref.Platform)
		return models.PlaylistRef{}, nil, nil, &TransferError{Stage: models.StatusResolving, Err: err}
	}

	source, ok := e.sources[ref.Platform]
	if !ok {
		err := fmt.Errorf("%w: no source configured for %s", shared.ErrUnsupportedPlatform, ref.Platform)
		return models.PlaylistRef{}, nil, nil, &TransferError{Stage: models.StatusResolving, Err: err}
	}

	dest, ok := e.dests[req.Destination]
	if !ok {
		err := fmt.Errorf("%w: no destination configured for %s", shared.ErrUnsupportedPlatform, req.Destination)
		return models.PlaylistRef{}, nil, nil, &TransferError{Stage: models.StatusResolving, Err: err}
	}

	return ref, source, dest, nil
}

// consumeQuota spends one transfer from the identity's quota. A limiter
// infrastructure failure is logged and waved through rather than blocking
// the user.
func (e *TransferEngine) consumeQuota(ctx context.Context, identity string) error {
	if e.limiter == nil {
		return nil
	}

	decision, err := e.limiter.CheckAndConsume(ctx, identity)
	if err != nil {
		e.logger.Warn("rate limiter unavailable, allowing transfer", "error", err)
		return nil
	}

	if !decision.Allowed {
		retryAfter := time.Until(decision.ResetAt)
		if retryAfter < 0 {
			retryAfter = 0
		}

		return &TransferError{
			Stage:      models.StatusResolving,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("%w: transfer quota exhausted, retry after %s", shared.ErrRateLimited, retryAfter.Round(time.Second)),
		}
	}

	e.logger.Debug("transfer quota consumed", "identity", identity, "remaining", decision.Remaining)
	return nil
}

func (e *TransferEngine) extract(ctx context.Context, source services.SourceCatalog, playlistID string) (*services.Playlist, []models.Track, error) {
	policy := PolicyFromConfig(e.cfg)

	var playlist *services.Playlist
	err := withRetry(ctx, e.logger, policy, "get playlist", func(ctx context.Context) error {
		found, err := source.GetPlaylist(ctx, playlistID)
		if err != nil {
			return err
		}
		playlist = found
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var tracks []models.Track
	err = withRetry(ctx, e.logger, policy, "list tracks", func(ctx context.Context) error {
		found, err := source.PlaylistTracks(ctx, playlistID)
		if err != nil {
			return err
		}
		tracks = found
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return playlist, tracks, nil
}

// match fans track resolution out over a bounded worker pool. Every track
// owns one result slot indexed by its source position, so the output order
// is stable no matter which worker finishes first. When the matching
// deadline expires, feeding stops, in-flight work gets a bounded drain
// window, and any still-pending slot becomes an errored result.
func (e *TransferEngine) match(ctx context.Context, dest services.Destination, tracks []models.Track, progress *progressGate) []models.MatchResult {
	slots := make([]*models.MatchResult, len(tracks))
	if len(tracks) == 0 {
		return []models.MatchResult{}
	}

	matchCtx, cancel := context.WithTimeout(ctx, e.cfg.Deadline())
	defer cancel()

	resolver := NewMatchResolver(dest, e.oracle, e.logger, e.cfg)

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tracks) {
		workers = len(tracks)
	}

	rps := e.cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	pacer := rate.NewLimiter(rate.Limit(rps), 1)

	jobs := make(chan models.Track)
	var completed atomic.Int64
	var wg sync.WaitGroup

	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for track := range jobs {
				if err := pacer.Wait(matchCtx); err != nil {
					return
				}

				result := resolver.Resolve(matchCtx, track)

				mu.Lock()
				slots[track.SourceIndex] = &result
				mu.Unlock()

				progress.send(matchUpdate(int(completed.Add(1)), len(tracks)))
			}
		}()
	}

feed:
	for _, track := range tracks {
		select {
		case <-matchCtx.Done():
			break feed
		case jobs <- track:
		}
	}
	close(jobs)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-matchCtx.Done():
		select {
		case <-done:
		case <-time.After(e.cfg.Drain()):
			e.logger.Warn("matching deadline expired with work still in flight")
		}
	}

	results := make([]models.MatchResult, len(tracks))
	mu.Lock()
	defer mu.Unlock()
	for i, track := range tracks {
		if slots[i] != nil {
			results[i] = *slots[i]
			continue
		}

		results[i] = models.MatchResult{
			Track:    track,
			Outcome:  models.OutcomeErrored,
			Strategy: models.StrategyNone,
			Error:    "match deadline exceeded before track was resolved",
		}
	}

	return results
}
