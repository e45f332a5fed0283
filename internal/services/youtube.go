// YouTube Music implementation of [SourceCatalog] and [Destination]
//
// Communicates with the FastAPI proxy server wrapping the ytmusicapi Python
// library. The proxy handles YouTube Music authentication; the auth_file path
// is sent via the X-Auth-File header on each request.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

const (
	defaultYTBaseURL = "http://localhost:8080"

	ytPageLimit   = 100
	ytAppendLimit = 50
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	DurationSec int             `json:"duration_seconds"`
}

// ytTrackPage is one page of /api/playlists/{id}/tracks.
type ytTrackPage struct {
	Tracks       []YouTubeTrack `json:"tracks"`
	Continuation string         `json:"continuation"`
}

// YouTubeService implements [SourceCatalog] and [Destination] via the proxy.
type YouTubeService struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(baseURL string) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	return &YouTubeService{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// Authenticate stores the authentication file path for subsequent requests.
//
// Expects credentials["auth_file"] to contain the path to browser.json or oauth.json.
func (y *YouTubeService) Authenticate(ctx context.Context, credentials map[string]string) error {
	authFile, ok := credentials["auth_file"]
	if !ok || authFile == "" {
		return fmt.Errorf("%w: missing auth_file", shared.ErrMissingCredentials)
	}

	y.authFile = authFile
	return nil
}

func (y *YouTubeService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	apiURL := y.baseURL + endpoint

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapYouTubeStatus(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// mapYouTubeStatus converts a proxy error response into a typed error,
// including the proxy's detail message when present.
func mapYouTubeStatus(resp *http.Response) error {
	detail := ""
	var errResp struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
		detail = ": " + errResp.Detail
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: youtube music status 404%s", shared.ErrPlaylistNotFound, detail)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: youtube music status 401%s", shared.ErrNotAuthenticated, detail)
	case resp.StatusCode == http.StatusForbidden:
		// ytmusicapi surfaces "quotaExceeded" in the detail for quota 403s.
		if strings.Contains(strings.ToLower(detail), "quota") {
			return fmt.Errorf("%w: youtube music status 403%s", shared.ErrQuotaExceeded, detail)
		}
		return fmt.Errorf("%w: youtube music status 403%s", shared.ErrPlaylistPrivate, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		if after, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && after > 0 {
			return &RetryAfterError{After: time.Duration(after) * time.Second}
		}
		// No Retry-After means the daily budget is spent, not a transient burst.
		return fmt.Errorf("%w: youtube music status 429%s", shared.ErrQuotaExceeded, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: youtube music status %d%s", shared.ErrUpstreamUnavailable, resp.StatusCode, detail)
	default:
		return fmt.Errorf("youtube music API error: status %d%s", resp.StatusCode, detail)
	}
}

// GetPlaylist retrieves playlist metadata via GET /api/playlists/{id}.
func (y *YouTubeService) GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	var ytPlaylist struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Privacy     string `json:"privacy"`
		TrackCount  int    `json:"trackCount"`
	}

	endpoint := fmt.Sprintf("/api/playlists/%s", playlistID)
	if err := y.doRequest(ctx, http.MethodGet, endpoint, nil, &ytPlaylist); err != nil {
		return nil, err
	}

	return &Playlist{
		ID:          ytPlaylist.ID,
		Name:        ytPlaylist.Title,
		Description: ytPlaylist.Description,
		TrackCount:  ytPlaylist.TrackCount,
		Public:      ytPlaylist.Privacy == "PUBLIC",
	}, nil
}

// PlaylistTracks pages through GET /api/playlists/{id}/tracks using the
// proxy's continuation token until the playlist is exhausted.
func (y *YouTubeService) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	continuation := ""

	for {
		endpoint := fmt.Sprintf("/api/playlists/%s/tracks?limit=%d", playlistID, ytPageLimit)
		if continuation != "" {
			endpoint += "&continuation=" + url.QueryEscape(continuation)
		}

		var page ytTrackPage
		if err := y.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, ytt := range page.Tracks {
			if ytt.VideoID == "" {
				continue
			}
			tracks = append(tracks, youtubeToTrack(ytt, len(tracks)))
		}

		if page.Continuation == "" || len(page.Tracks) == 0 {
			break
		}
		continuation = page.Continuation
	}

	return tracks, nil
}

func youtubeToTrack(ytt YouTubeTrack, index int) models.Track {
	track := models.Track{
		Title:       ytt.Title,
		Duration:    ytt.DurationSec,
		SourceIndex: index,
	}

	if len(ytt.Artists) > 0 {
		track.Artist = ytt.Artists[0].Name
		for _, a := range ytt.Artists[1:] {
			track.AdditionalArtists = append(track.AdditionalArtists, a.Name)
		}
	}

	if ytt.Album != nil {
		track.Album = ytt.Album.Name
	}

	return track
}

// Search queries GET /api/search?filter=songs and returns candidates in relevance order.
func (y *YouTubeService) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	endpoint := fmt.Sprintf("/api/search?q=%s&filter=songs&limit=%d", url.QueryEscape(query), limit)

	var results []YouTubeTrack
	if err := y.doRequest(ctx, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}

	candidates := make([]models.Candidate, 0, len(results))
	for i, ytt := range results {
		artist := ""
		if len(ytt.Artists) > 0 {
			artist = ytt.Artists[0].Name
		}
		album := ""
		if ytt.Album != nil {
			album = ytt.Album.Name
		}
		candidates = append(candidates, models.Candidate{
			ID:       ytt.VideoID,
			Title:    ytt.Title,
			Artist:   artist,
			Album:    album,
			Duration: ytt.DurationSec,
			Rank:     i,
		})
	}

	return candidates, nil
}

// CreatePlaylist creates a playlist via POST /api/playlists.
func (y *YouTubeService) CreatePlaylist(ctx context.Context, name, description string) (*Playlist, error) {
	body := map[string]string{
		"title":          name,
		"description":    description,
		"privacy_status": "PRIVATE",
	}

	var createResp struct {
		PlaylistID string `json:"playlist_id"`
	}
	if err := y.doRequest(ctx, http.MethodPost, "/api/playlists", body, &createResp); err != nil {
		return nil, err
	}
	if createResp.PlaylistID == "" {
		return nil, fmt.Errorf("%w: proxy returned empty playlist id", shared.ErrUpstreamUnavailable)
	}

	return &Playlist{
		ID:          createResp.PlaylistID,
		Name:        name,
		Description: description,
	}, nil
}

// AppendTracks adds tracks via POST /api/playlists/{id}/items.
func (y *YouTubeService) AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > ytAppendLimit {
		return fmt.Errorf("%w: at most %d tracks per append", shared.ErrInvalidArgument, ytAppendLimit)
	}

	endpoint := fmt.Sprintf("/api/playlists/%s/items", playlistID)
	body := map[string][]string{"video_ids": trackIDs}
	return y.doRequest(ctx, http.MethodPost, endpoint, body, nil)
}

func (y *YouTubeService) MaxAppendBatch() int {
	return ytAppendLimit
}

func (y *YouTubeService) PlaylistURL(playlistID string) string {
	return "https://music.youtube.com/playlist?list=" + playlistID
}
