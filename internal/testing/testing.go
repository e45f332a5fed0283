// package testing contains shared test doubles and helpers.
package testing

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
)

// StubSource is a test double for [services.SourceCatalog].
type StubSource struct {
	Playlist    *services.Playlist
	Tracks      []models.Track
	PlaylistErr error
	TracksErr   error

	mu            sync.Mutex
	playlistCalls int
	tracksCalls   int
}

func (s *StubSource) Name() string { return "stub-source" }

func (s *StubSource) GetPlaylist(ctx context.Context, playlistID string) (*services.Playlist, error) {
	s.mu.Lock()
	s.playlistCalls++
	s.mu.Unlock()

	if s.PlaylistErr != nil {
		return nil, s.PlaylistErr
	}
	if s.Playlist == nil {
		return &services.Playlist{ID: playlistID, Name: "Stub Playlist"}, nil
	}
	return s.Playlist, nil
}

func (s *StubSource) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	s.mu.Lock()
	s.tracksCalls++
	s.mu.Unlock()

	if s.TracksErr != nil {
		return nil, s.TracksErr
	}
	return s.Tracks, nil
}

// Calls returns how many upstream calls the stub received.
func (s *StubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlistCalls + s.tracksCalls
}

// StubDestination is a test double for [services.Destination]. SearchFunc
// receives the query and the 1-based call number, so tests can script
// per-call behavior (transient failures, empty-then-populated results).
type StubDestination struct {
	SearchFunc  func(query string, call int) ([]models.Candidate, error)
	CreateErr   error
	AppendErr   func(batch int) error // keyed by 1-based batch number
	BatchLimit  int
	CreatedID   string
	CreatedName string

	mu      sync.Mutex
	queries []string
	appends [][]string
	creates int
}

func (d *StubDestination) Name() string { return "stub-destination" }

func (d *StubDestination) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	d.mu.Lock()
	d.queries = append(d.queries, query)
	call := len(d.queries)
	d.mu.Unlock()

	if d.SearchFunc == nil {
		return nil, nil
	}
	return d.SearchFunc(query, call)
}

func (d *StubDestination) CreatePlaylist(ctx context.Context, name, description string) (*services.Playlist, error) {
	d.mu.Lock()
	d.creates++
	d.mu.Unlock()

	if d.CreateErr != nil {
		return nil, d.CreateErr
	}

	id := d.CreatedID
	if id == "" {
		id = "stub-playlist-id"
	}
	d.CreatedName = name
	return &services.Playlist{ID: id, Name: name, Description: description}, nil
}

func (d *StubDestination) AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	d.mu.Lock()
	batch := append([]string(nil), trackIDs...)
	d.appends = append(d.appends, batch)
	batchNum := len(d.appends)
	d.mu.Unlock()

	if d.AppendErr != nil {
		return d.AppendErr(batchNum)
	}
	return nil
}

func (d *StubDestination) MaxAppendBatch() int {
	if d.BatchLimit < 1 {
		return 100
	}
	return d.BatchLimit
}

func (d *StubDestination) PlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://stub.example/playlist/%s", playlistID)
}

// Queries returns every search query received, in order.
func (d *StubDestination) Queries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queries...)
}

// Appends returns every append batch received, in order.
func (d *StubDestination) Appends() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.appends))
	copy(out, d.appends)
	return out
}

// Creates returns how many playlists were created.
func (d *StubDestination) Creates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates
}

// Calls returns the total number of upstream calls the stub received.
func (d *StubDestination) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queries) + len(d.appends) + d.creates
}

// StubOracle is a test double for [services.Disambiguator].
type StubOracle struct {
	Index int
	Err   error

	mu    sync.Mutex
	calls int
}

func (o *StubOracle) Disambiguate(ctx context.Context, track models.Track, candidates []models.Candidate) (int, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()

	if o.Err != nil {
		return services.NoMatch, o.Err
	}
	return o.Index, nil
}

func (o *StubOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// StubLimiter is a scripted rate limiter.
type StubLimiter struct {
	Decision models.QuotaDecision
	Err      error

	mu    sync.Mutex
	calls int
}

func (l *StubLimiter) CheckAndConsume(ctx context.Context, identity string) (models.QuotaDecision, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.Err != nil {
		return models.QuotaDecision{}, l.Err
	}
	return l.Decision, nil
}

func (l *StubLimiter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// AllowAll returns a limiter that always grants.
func AllowAll() *StubLimiter {
	return &StubLimiter{Decision: models.QuotaDecision{Allowed: true, Remaining: 1, ResetAt: time.Now().Add(time.Hour)}}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
