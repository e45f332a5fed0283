package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
)

// Searcher is the slice of the destination service the matcher needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.Candidate, error)
}

// MatchResolver resolves one source track to a destination candidate by
// working through strategies in order of cost: exact normalized equality,
// fuzzy similarity, AI disambiguation, then a single title-only fallback
// query when the primary search comes back empty.
type MatchResolver struct {
	searcher    Searcher
	oracle      services.Disambiguator
	logger      *log.Logger
	retry       RetryPolicy
	searchLimit int
	threshold   float64
	margin      float64
}

// NewMatchResolver builds a resolver against a destination catalog. The
// oracle may be nil, which disables AI-assisted disambiguation.
func NewMatchResolver(searcher Searcher, oracle services.Disambiguator, logger *log.Logger, cfg shared.TransferConfig) *MatchResolver {
	limit := cfg.SearchLimit
	if limit < 1 {
		limit = 10
	}

	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = 0.85
	}

	return &MatchResolver{
		searcher:    searcher,
		oracle:      oracle,
		logger:      logger,
		retry:       PolicyFromConfig(cfg),
		searchLimit: limit,
		threshold:   threshold,
		margin:      cfg.FuzzyMargin,
	}
}

// Resolve produces the terminal MatchResult for one track. Search failures
// that survive retries yield an errored result rather than an error; the
// transfer carries on with the remaining tracks.
func (m *MatchResolver) Resolve(ctx context.Context, track models.Track) models.MatchResult {
	candidates, err := m.search(ctx, primaryQuery(track))
	if err != nil {
		return erroredResult(track, err)
	}

	usedFallback := false
	if len(candidates) == 0 {
		usedFallback = true
		candidates, err = m.search(ctx, fallbackQuery(track))
		if err != nil {
			return erroredResult(track, err)
		}
	}

	if len(candidates) == 0 {
		return models.MatchResult{
			Track:    track,
			Outcome:  models.OutcomeUnmatched,
			Strategy: models.StrategyFallbackQuery,
		}
	}

	if result, ok := m.exact(track, candidates); ok {
		return result
	}

	if result, ok := m.fuzzy(track, candidates); ok {
		return result
	}

	if m.oracle != nil {
		return m.disambiguate(ctx, track, candidates)
	}

	strategy := models.StrategyFuzzy
	if usedFallback {
		strategy = models.StrategyFallbackQuery
	}

	return models.MatchResult{Track: track, Outcome: models.OutcomeUnmatched, Strategy: strategy}
}

func (m *MatchResolver) search(ctx context.Context, query string) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := withRetry(ctx, m.logger, m.retry, "search", func(ctx context.Context) error {
		found, err := m.searcher.Search(ctx, query, m.searchLimit)
		if err != nil {
			return err
		}
		candidates = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	return candidates, nil
}

// exact matches on normalized (title, artist) equality after noise stripping.
func (m *MatchResolver) exact(track models.Track, candidates []models.Candidate) (models.MatchResult, bool) {
	want := shared.NormalizeTrackKey(track.Title, track.Artist)
	for i := range candidates {
		got := shared.NormalizeTrackKey(candidates[i].Title, candidates[i].Artist)
		if got == want {
			return models.MatchResult{
				Track:      track,
				Outcome:    models.OutcomeMatched,
				Candidate:  &candidates[i],
				Strategy:   models.StrategyExact,
				Confidence: 1.0,
			}, true
		}
	}

	return models.MatchResult{}, false
}

// fuzzy accepts the highest-scoring candidate above the threshold. When the
// runner-up sits within the margin, duration proximity and then native rank
// break the tie.
func (m *MatchResolver) fuzzy(track models.Track, candidates []models.Candidate) (models.MatchResult, bool) {
	type scored struct {
		candidate *models.Candidate
		score     float64
	}

	ranked := make([]scored, 0, len(candidates))
	for i := range candidates {
		ranked = append(ranked, scored{
			candidate: &candidates[i],
			score:     similarity(track, candidates[i]),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	best := ranked[0]
	if best.score < m.threshold {
		return models.MatchResult{}, false
	}

	for _, contender := range ranked[1:] {
		if best.score-contender.score >= m.margin {
			break
		}

		if closerFit(track, contender.candidate, best.candidate) {
			best = contender
		}
	}

	return models.MatchResult{
		Track:      track,
		Outcome:    models.OutcomeMatched,
		Candidate:  best.candidate,
		Strategy:   models.StrategyFuzzy,
		Confidence: best.score,
	}, true
}

func (m *MatchResolver) disambiguate(ctx context.Context, track models.Track, candidates []models.Candidate) models.MatchResult {
	idx, err := m.oracle.Disambiguate(ctx, track, candidates)
	if err != nil {
		m.logger.Warn("disambiguation failed, treating as no match", "track", track.Title, "error", err)
		idx = services.NoMatch
	}

	if idx < 0 || idx >= len(candidates) {
		return models.MatchResult{
			Track:    track,
			Outcome:  models.OutcomeUnmatched,
			Strategy: models.StrategyAIAssisted,
		}
	}

	return models.MatchResult{
		Track:      track,
		Outcome:    models.OutcomeMatched,
		Candidate:  &candidates[idx],
		Strategy:   models.StrategyAIAssisted,
		Confidence: similarity(track, candidates[idx]),
	}
}

// similarity combines Jaro-Winkler scores over the normalized title and
// artist, weighted toward the title.
func similarity(track models.Track, candidate models.Candidate) float64 {
	jw := metrics.NewJaroWinkler()
	titleScore := strutil.Similarity(
		shared.NormalizeText(shared.CleanTitle(track.Title)),
		shared.NormalizeText(shared.CleanTitle(candidate.Title)),
		jw,
	)
	artistScore := strutil.Similarity(
		shared.NormalizeText(track.Artist),
		shared.NormalizeText(candidate.Artist),
		jw,
	)

	return 0.7*titleScore + 0.3*artistScore
}

// closerFit reports whether a beats b on duration proximity, falling back
// to the upstream relevance rank.
func closerFit(track models.Track, a, b *models.Candidate) bool {
	if track.Duration > 0 && a.Duration > 0 && b.Duration > 0 {
		da, db := durationGap(track.Duration, a.Duration), durationGap(track.Duration, b.Duration)
		if da != db {
			return da < db
		}
	}

	return a.Rank < b.Rank
}

func durationGap(want, got int) int {
	if want > got {
		return want - got
	}
	return got - want
}

// primaryQuery pairs the cleaned title with the primary artist, lower-cased
// and diacritic-folded so upstream search sees canonical text.
func primaryQuery(track models.Track) string {
	title := shared.NormalizeText(shared.CleanTitle(track.Title))
	if track.Artist == "" {
		return title
	}
	return title + " " + shared.NormalizeText(track.Artist)
}

// fallbackQuery drops the artist entirely. Live and regional releases are
// frequently credited to a different artist string on the destination side.
func fallbackQuery(track models.Track) string {
	return shared.NormalizeText(shared.CleanTitle(track.Title))
}

func erroredResult(track models.Track, err error) models.MatchResult {
	return models.MatchResult{
		Track:    track,
		Outcome:  models.OutcomeErrored,
		Strategy: models.StrategyNone,
		Error:    err.Error(),
	}
}
