package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	tu "github.com/desertthunder/plx/internal/testing"
)

const sourceURL = "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"

func newTestEngine(source *tu.StubSource, dest *tu.StubDestination, oracle services.Disambiguator, limiter RateLimiter) *TransferEngine {
	return NewTransferEngine(EngineOpts{
		Sources: map[models.Platform]services.SourceCatalog{models.PlatformSpotify: source},
		Dests:   map[models.Platform]services.Destination{models.PlatformYouTubeMusic: dest},
		Oracle:  oracle,
		Limiter: limiter,
		Logger:  testLogger(),
		Config:  testTransferConfig(),
	})
}

func transferRequest(identity string) TransferRequest {
	return TransferRequest{
		SourceURL:   sourceURL,
		Destination: models.PlatformYouTubeMusic,
		Identity:    identity,
	}
}

func TestTransferPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed outcomes end to end", func(t *testing.T) {
		source := &tu.StubSource{
			Playlist: &services.Playlist{ID: "src", Name: "Road Trip"},
			Tracks: []models.Track{
				{Title: "Alpha", Artist: "Artist A", SourceIndex: 0},
				{Title: "Bravo", Artist: "Artist B", SourceIndex: 1},
				{Title: "Charlie", Artist: "Artist C", SourceIndex: 2},
			},
		}

		var charlieCalls atomic.Int32
		dest := &tu.StubDestination{
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				switch {
				case strings.Contains(query, "alpha"):
					return []models.Candidate{{ID: "alpha-id", Title: "Alpha", Artist: "Artist A"}}, nil
				case strings.Contains(query, "bravo"):
					return nil, nil
				case strings.Contains(query, "charlie"):
					if charlieCalls.Add(1) == 1 {
						return nil, &services.RetryAfterError{After: time.Millisecond}
					}
					return []models.Candidate{{ID: "charlie-id", Title: "Charlie - Live", Artist: "Artist C"}}, nil
				default:
					return nil, nil
				}
			},
		}

		limiter := tu.AllowAll()
		engine := newTestEngine(source, dest, nil, limiter)

		report, err := engine.TransferPlaylist(ctx, transferRequest("user-1"))
		if err != nil {
			t.Fatalf("TransferPlaylist returned error: %v", err)
		}

		if report.Status != models.StatusCompleted {
			t.Errorf("Status = %v, want completed", report.Status)
		}
		if report.SourceName != "Road Trip" {
			t.Errorf("SourceName = %q, want %q", report.SourceName, "Road Trip")
		}
		if report.Counts != (models.ReportCounts{Matched: 2, Unmatched: 1, Errored: 0, Total: 3}) {
			t.Errorf("Counts = %+v, want {2 1 0 3}", report.Counts)
		}

		if len(report.Results) != 3 {
			t.Fatalf("got %d results, want 3", len(report.Results))
		}
		if report.Results[0].Strategy != models.StrategyExact {
			t.Errorf("track 0 strategy = %v, want exact", report.Results[0].Strategy)
		}
		if report.Results[1].Outcome != models.OutcomeUnmatched || report.Results[1].Strategy != models.StrategyFallbackQuery {
			t.Errorf("track 1 = %v/%v, want unmatched/fallback_query", report.Results[1].Outcome, report.Results[1].Strategy)
		}
		if report.Results[2].Strategy != models.StrategyFuzzy {
			t.Errorf("track 2 strategy = %v, want fuzzy", report.Results[2].Strategy)
		}

		if len(report.Appended) != 2 || report.Appended[0] != "alpha-id" || report.Appended[1] != "charlie-id" {
			t.Errorf("Appended = %v, want [alpha-id charlie-id]", report.Appended)
		}
		if report.PlaylistID == "" || report.PlaylistURL == "" {
			t.Errorf("destination playlist not recorded: %+v", report)
		}
		if limiter.Calls() != 1 {
			t.Errorf("limiter consulted %d times, want exactly 1", limiter.Calls())
		}
	})

	t.Run("results stay in source order under concurrency", func(t *testing.T) {
		const count = 8
		tracks := make([]models.Track, count)
		for i := range tracks {
			tracks[i] = models.Track{Title: fmt.Sprintf("Song%d", i), Artist: "A", SourceIndex: i}
		}

		source := &tu.StubSource{Tracks: tracks}
		dest := &tu.StubDestination{
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				// Later tracks finish first.
				title := strings.Fields(query)[0]
				var n int
				fmt.Sscanf(title, "song%d", &n)
				time.Sleep(time.Duration(count-n) * 10 * time.Millisecond)
				return []models.Candidate{{ID: "id-" + title, Title: title, Artist: "A"}}, nil
			},
		}

		engine := newTestEngine(source, dest, nil, tu.AllowAll())
		report, err := engine.TransferPlaylist(ctx, transferRequest("user-2"))
		if err != nil {
			t.Fatalf("TransferPlaylist returned error: %v", err)
		}

		if len(report.Results) != count {
			t.Fatalf("got %d results, want %d", len(report.Results), count)
		}
		for i, result := range report.Results {
			if result.Track.SourceIndex != i {
				t.Errorf("Results[%d].Track.SourceIndex = %d", i, result.Track.SourceIndex)
			}
		}
		for i, id := range report.Appended {
			if want := fmt.Sprintf("id-song%d", i); id != want {
				t.Errorf("Appended[%d] = %q, want %q", i, id, want)
			}
		}
	})

	t.Run("quota denial blocks all upstream work", func(t *testing.T) {
		source := &tu.StubSource{Tracks: []models.Track{{Title: "Alpha", Artist: "A", SourceIndex: 0}}}
		dest := &tu.StubDestination{}
		resetAt := time.Now().Add(30 * time.Minute)
		limiter := &tu.StubLimiter{Decision: models.QuotaDecision{Allowed: false, ResetAt: resetAt}}

		engine := newTestEngine(source, dest, nil, limiter)
		report, err := engine.TransferPlaylist(ctx, transferRequest("user-3"))

		if report != nil {
			t.Errorf("report = %+v, want nil", report)
		}

		var terr *TransferError
		if !errors.As(err, &terr) {
			t.Fatalf("error = %v, want *TransferError", err)
		}
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("error = %v, want ErrRateLimited", err)
		}
		if terr.RetryAfter <= 0 || terr.RetryAfter > 30*time.Minute {
			t.Errorf("RetryAfter = %v, want within the remaining window", terr.RetryAfter)
		}
		if source.Calls() != 0 || dest.Calls() != 0 {
			t.Errorf("upstream calls after denial: source=%d dest=%d", source.Calls(), dest.Calls())
		}
		if limiter.Calls() != 1 {
			t.Errorf("limiter consulted %d times, want exactly 1", limiter.Calls())
		}
	})

	t.Run("limiter outage does not block the transfer", func(t *testing.T) {
		source := &tu.StubSource{Tracks: nil}
		dest := &tu.StubDestination{}
		limiter := &tu.StubLimiter{Err: errors.New("store offline")}

		engine := newTestEngine(source, dest, nil, limiter)
		report, err := engine.TransferPlaylist(ctx, transferRequest("user-4"))
		if err != nil {
			t.Fatalf("TransferPlaylist returned error: %v", err)
		}
		if report.Status != models.StatusCompleted {
			t.Errorf("Status = %v, want completed", report.Status)
		}
	})

	t.Run("invalid URL fails before the quota is consumed", func(t *testing.T) {
		limiter := tu.AllowAll()
		engine := newTestEngine(&tu.StubSource{}, &tu.StubDestination{}, nil, limiter)

		req := transferRequest("user-5")
		req.SourceURL = "https://soundcloud.com/sets/mix"

		_, err := engine.TransferPlaylist(ctx, req)
		if !errors.Is(err, shared.ErrUnsupportedPlatform) {
			t.Fatalf("error = %v, want ErrUnsupportedPlatform", err)
		}
		if limiter.Calls() != 0 {
			t.Errorf("quota consumed for invalid input")
		}
	})

	t.Run("same-platform transfer is rejected", func(t *testing.T) {
		engine := NewTransferEngine(EngineOpts{
			Sources: map[models.Platform]services.SourceCatalog{models.PlatformSpotify: &tu.StubSource{}},
			Dests:   map[models.Platform]services.Destination{models.PlatformSpotify: &tu.StubDestination{}},
			Limiter: tu.AllowAll(),
			Logger:  testLogger(),
			Config:  testTransferConfig(),
		})

		req := transferRequest("user-6")
		req.Destination = models.PlatformSpotify

		if _, err := engine.TransferPlaylist(ctx, req); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("extraction failure is fatal", func(t *testing.T) {
		source := &tu.StubSource{PlaylistErr: shared.ErrPlaylistNotFound}
		dest := &tu.StubDestination{}

		engine := newTestEngine(source, dest, nil, tu.AllowAll())
		_, err := engine.TransferPlaylist(ctx, transferRequest("user-7"))

		var terr *TransferError
		if !errors.As(err, &terr) || terr.Stage != models.StatusExtracting {
			t.Fatalf("error = %v, want extraction-stage TransferError", err)
		}
		if dest.Calls() != 0 {
			t.Errorf("destination touched after extraction failure")
		}
	})

	t.Run("nothing matched skips playlist creation", func(t *testing.T) {
		source := &tu.StubSource{Tracks: []models.Track{{Title: "Ghost", Artist: "Nobody", SourceIndex: 0}}}
		dest := &tu.StubDestination{
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				return nil, nil
			},
		}

		engine := newTestEngine(source, dest, nil, tu.AllowAll())
		report, err := engine.TransferPlaylist(ctx, transferRequest("user-8"))
		if err != nil {
			t.Fatalf("TransferPlaylist returned error: %v", err)
		}

		if report.Status != models.StatusCompleted {
			t.Errorf("Status = %v, want completed", report.Status)
		}
		if dest.Creates() != 0 {
			t.Errorf("playlist created with zero matches")
		}
		if report.Counts.Unmatched != 1 {
			t.Errorf("Counts = %+v, want 1 unmatched", report.Counts)
		}
	})

	t.Run("partial append failure returns report and error", func(t *testing.T) {
		tracks := make([]models.Track, 4)
		for i := range tracks {
			tracks[i] = models.Track{Title: fmt.Sprintf("Song%d", i), Artist: "A", SourceIndex: i}
		}
		source := &tu.StubSource{Tracks: tracks}
		dest := &tu.StubDestination{
			BatchLimit: 2,
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				title := strings.Fields(query)[0]
				return []models.Candidate{{ID: "id-" + title, Title: title, Artist: "A"}}, nil
			},
			AppendErr: func(batch int) error {
				if batch >= 2 {
					return shared.ErrNotAuthenticated
				}
				return nil
			},
		}

		engine := newTestEngine(source, dest, nil, tu.AllowAll())
		report, err := engine.TransferPlaylist(ctx, transferRequest("user-9"))

		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("error = %v, want ErrNotAuthenticated", err)
		}
		if report == nil {
			t.Fatal("report must record partial progress")
		}
		if report.Status != models.StatusFailed {
			t.Errorf("Status = %v, want failed", report.Status)
		}
		if len(report.Appended) != 2 || report.Appended[0] != "id-song0" || report.Appended[1] != "id-song1" {
			t.Errorf("Appended = %v, want the confirmed prefix [id-song0 id-song1]", report.Appended)
		}
	})

	t.Run("deadline produces a result for every track", func(t *testing.T) {
		const count = 10
		tracks := make([]models.Track, count)
		for i := range tracks {
			tracks[i] = models.Track{Title: "Same Song", Artist: "Same Artist", SourceIndex: i}
		}
		source := &tu.StubSource{Tracks: tracks}
		dest := &tu.StubDestination{
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				time.Sleep(300 * time.Millisecond)
				return []models.Candidate{{ID: fmt.Sprintf("id-%d", call), Title: "Same Song", Artist: "Same Artist"}}, nil
			},
		}

		cfg := testTransferConfig()
		cfg.Workers = 1
		cfg.DeadlineSeconds = 1
		cfg.DrainSeconds = 1

		engine := NewTransferEngine(EngineOpts{
			Sources: map[models.Platform]services.SourceCatalog{models.PlatformSpotify: source},
			Dests:   map[models.Platform]services.Destination{models.PlatformYouTubeMusic: dest},
			Limiter: tu.AllowAll(),
			Logger:  testLogger(),
			Config:  cfg,
		})

		report, err := engine.TransferPlaylist(ctx, transferRequest("user-10"))
		if err != nil {
			t.Fatalf("TransferPlaylist returned error: %v", err)
		}

		if len(report.Results) != count {
			t.Fatalf("got %d results, want %d", len(report.Results), count)
		}

		var matched, errored int
		for i, result := range report.Results {
			if result.Track.SourceIndex != i {
				t.Errorf("Results[%d] out of order", i)
			}
			switch result.Outcome {
			case models.OutcomeMatched:
				matched++
			case models.OutcomeErrored:
				errored++
				if !strings.Contains(result.Error, "deadline") {
					t.Errorf("Results[%d].Error = %q, want a deadline reason", i, result.Error)
				}
			}
		}

		if matched == 0 {
			t.Error("expected some tracks to resolve before the deadline")
		}
		if errored == 0 {
			t.Error("expected some tracks to be cut off by the deadline")
		}
		if matched+errored+report.Counts.Unmatched != count {
			t.Errorf("outcomes do not cover every track: %+v", report.Counts)
		}
	})

	t.Run("progress updates never block", func(t *testing.T) {
		source := &tu.StubSource{Tracks: []models.Track{{Title: "Alpha", Artist: "A", SourceIndex: 0}}}
		dest := &tu.StubDestination{
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				return []models.Candidate{{ID: "alpha-id", Title: "Alpha", Artist: "A"}}, nil
			},
		}

		// Unbuffered with no reader: every send must fall through.
		progress := make(chan ProgressUpdate)
		req := transferRequest("user-11")
		req.Progress = progress

		engine := newTestEngine(source, dest, nil, tu.AllowAll())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := engine.TransferPlaylist(ctx, req); err != nil {
				t.Errorf("TransferPlaylist returned error: %v", err)
			}
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("transfer blocked on an unread progress channel")
		}
	})

	t.Run("straggler past the drain window never touches the progress channel", func(t *testing.T) {
		release := make(chan struct{})
		source := &tu.StubSource{Tracks: []models.Track{{Title: "Slow Song", Artist: "A", SourceIndex: 0}}}
		dest := &tu.StubDestination{
			SearchFunc: func(query string, call int) ([]models.Candidate, error) {
				<-release
				return []models.Candidate{{ID: "slow-id", Title: "Slow Song", Artist: "A"}}, nil
			},
		}

		cfg := testTransferConfig()
		cfg.Workers = 1
		cfg.DeadlineSeconds = 1
		cfg.DrainSeconds = 1

		engine := NewTransferEngine(EngineOpts{
			Sources: map[models.Platform]services.SourceCatalog{models.PlatformSpotify: source},
			Dests:   map[models.Platform]services.Destination{models.PlatformYouTubeMusic: dest},
			Limiter: tu.AllowAll(),
			Logger:  testLogger(),
			Config:  cfg,
		})

		progress := make(chan ProgressUpdate, 4)
		req := transferRequest("user-12")
		req.Progress = progress

		report, err := engine.TransferPlaylist(ctx, req)
		if err != nil {
			t.Fatalf("TransferPlaylist returned error: %v", err)
		}
		if report.Results[0].Outcome != models.OutcomeErrored {
			t.Fatalf("Results[0].Outcome = %v, want errored", report.Results[0].Outcome)
		}

		// The caller owns the channel once the transfer returns. Let the
		// abandoned worker finish; a late send would crash the process here.
		close(progress)
		close(release)
		time.Sleep(200 * time.Millisecond)
	})
}
