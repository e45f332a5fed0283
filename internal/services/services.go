// package services defines the collaborator interfaces the transfer engine
// consumes and implements them for Spotify, YouTube Music, and OpenAI.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// SourceCatalog reads playlist metadata and tracks from a platform.
type SourceCatalog interface {
	// Name returns the service name (e.g., "Spotify", "YouTube Music")
	Name() string

	// GetPlaylist retrieves playlist metadata by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error)

	// PlaylistTracks retrieves every track of a playlist, paging to completion.
	// Tracks are returned in playlist order with dense source indexes 0..N-1.
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error)
}

// Destination searches a platform's catalog and writes playlists to it.
type Destination interface {
	// Name returns the service name.
	Name() string

	// Search queries the platform's catalog, returning up to limit candidates
	// in upstream relevance order. An empty result is not an error.
	Search(ctx context.Context, query string, limit int) ([]models.Candidate, error)

	// CreatePlaylist creates an empty playlist container and returns it.
	CreatePlaylist(ctx context.Context, name, description string) (*Playlist, error)

	// AppendTracks appends tracks to a playlist in the given order.
	// Callers must chunk batches to at most MaxAppendBatch ids.
	AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// MaxAppendBatch returns the platform's append batch-size limit.
	MaxAppendBatch() int

	// PlaylistURL returns the shareable URL for a playlist ID.
	PlaylistURL(playlistID string) string
}

// Disambiguator picks the best candidate for a track, or none.
//
// Best effort: never required for correctness, only for recall. The returned
// index is -1 when no candidate fits.
type Disambiguator interface {
	Disambiguate(ctx context.Context, track models.Track, candidates []models.Candidate) (int, error)
}

// Playlist represents playlist metadata from any service.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// RetryAfterError is a transient upstream failure carrying an explicit
// retry-after hint (HTTP 429). Unwraps to [shared.ErrUpstreamUnavailable]
// so retry policies treat it as transient.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %s", e.After)
}

func (e *RetryAfterError) Unwrap() error {
	return shared.ErrUpstreamUnavailable
}
