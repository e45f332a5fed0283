// Spotify implementation of [SourceCatalog] and [Destination]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
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
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPageLimit   = 100
	spotifyAppendLimit = 100
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// spotifyTrackPage is one page of /playlists/{id}/tracks.
type spotifyTrackPage struct {
	Items []struct {
		Track *SpotifyTrack `json:"track"`
	} `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

// SpotifyService implements [SourceCatalog] and [Destination] for the Spotify Web API.
// Uses [oauth2] for authentication.
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	baseURL    string
	userID     string
}

// NewSpotifyService creates a new Spotify service from configured credentials.
// When an access token is configured, the service is ready without a separate Authenticate call.
func NewSpotifyService(creds shared.SpotifyConfig) (*SpotifyService, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret required", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	svc := &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}

	if creds.AccessToken != "" {
		svc.token = &oauth2.Token{AccessToken: creds.AccessToken}
	}

	return svc, nil
}

// Authenticate accepts either an "access_token" or an "auth_code" credential.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.token = &oauth2.Token{AccessToken: accessToken}
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("failed to exchange auth code: %w", err)
		}
		s.token = token
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AccessToken returns the current bearer token after authentication.
func (s *SpotifyService) AccessToken() (string, error) {
	if s.token == nil || s.token.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}
	return s.token.AccessToken, nil
}

// OAuthConfig exposes the oauth2 configuration for the callback listener.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// SetToken installs a token obtained out of band (browser flow).
func (s *SpotifyService) SetToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
}

// doRequest performs an authenticated HTTP request to the Spotify API,
// mapping error statuses onto the shared error taxonomy.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := s.baseURL + endpoint

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

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapSpotifyStatus(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// mapSpotifyStatus converts an error response into a typed error, reading
// the error body to tell a quota 403 apart from a private playlist.
func mapSpotifyStatus(resp *http.Response) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&errResp)
	message := strings.ToLower(errResp.Error.Message)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: spotify status 404", shared.ErrPlaylistNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify status 401", shared.ErrNotAuthenticated)
	case resp.StatusCode == http.StatusForbidden:
		if strings.Contains(message, "quota") {
			return fmt.Errorf("%w: spotify status 403: %s", shared.ErrQuotaExceeded, errResp.Error.Message)
		}
		return fmt.Errorf("%w: spotify status 403", shared.ErrPlaylistPrivate)
	case resp.StatusCode == http.StatusTooManyRequests:
		if after, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && after > 0 {
			return &RetryAfterError{After: time.Duration(after) * time.Second}
		}
		// No Retry-After means the app's budget is spent, not a transient burst.
		return fmt.Errorf("%w: spotify status 429", shared.ErrQuotaExceeded)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: spotify status %d", shared.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}
}

// GetPlaylist retrieves playlist metadata by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	var sp SpotifyPlaylist
	endpoint := fmt.Sprintf("/playlists/%s?fields=id,name,description,public,tracks.total", playlistID)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &sp); err != nil {
		return nil, err
	}

	return &Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
	}, nil
}

// PlaylistTracks pages through /playlists/{id}/tracks until exhausted.
// Episodes and local files (null track objects) are skipped; indexes stay dense.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	offset := 0

	for {
		var page spotifyTrackPage
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", playlistID, spotifyPageLimit, offset)
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, spotifyToTrack(*item.Track, len(tracks)))
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += spotifyPageLimit
	}

	return tracks, nil
}

func spotifyToTrack(st SpotifyTrack, index int) models.Track {
	track := models.Track{
		Title:       st.Name,
		Album:       st.Album.Name,
		Duration:    st.DurationMS / 1000,
		SourceIndex: index,
	}

	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
		for _, a := range st.Artists[1:] {
			track.AdditionalArtists = append(track.AdditionalArtists, a.Name)
		}
	}

	return track
}

// Search queries /search?type=track and returns candidates in relevance order.
func (s *SpotifyService) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(response.Tracks.Items))
	for i, st := range response.Tracks.Items {
		artist := ""
		if len(st.Artists) > 0 {
			artist = st.Artists[0].Name
		}
		candidates = append(candidates, models.Candidate{
			ID:       st.ID,
			Title:    st.Name,
			Artist:   artist,
			Album:    st.Album.Name,
			Duration: st.DurationMS / 1000,
			Rank:     i,
		})
	}

	return candidates, nil
}

// CreatePlaylist creates a private playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string) (*Playlist, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var sp SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", userID)
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &sp); err != nil {
		return nil, err
	}

	return &Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		Public:      sp.Public,
	}, nil
}

// AppendTracks adds tracks to a playlist in order. Callers chunk to MaxAppendBatch.
func (s *SpotifyService) AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > spotifyAppendLimit {
		return fmt.Errorf("%w: at most %d tracks per append", shared.ErrInvalidArgument, spotifyAppendLimit)
	}

	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		if strings.HasPrefix(id, "spotify:track:") {
			uris[i] = id
		} else {
			uris[i] = "spotify:track:" + id
		}
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	return s.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"uris": uris}, nil)
}

func (s *SpotifyService) MaxAppendBatch() int {
	return spotifyAppendLimit
}

func (s *SpotifyService) PlaylistURL(playlistID string) string {
	return "https://open.spotify.com/playlist/" + playlistID
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// currentUserID fetches and caches the authenticated user's ID.
func (s *SpotifyService) currentUserID(ctx context.Context) (string, error) {
	if s.userID != "" {
		return s.userID, nil
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: empty user profile", shared.ErrNotAuthenticated)
	}

	s.userID = user.ID
	return s.userID, nil
}
