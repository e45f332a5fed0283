package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/plx/internal/shared"
	"golang.org/x/oauth2"
)

func newTestSpotify(t *testing.T, handler http.Handler) (*SpotifyService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewSpotifyService(shared.SpotifyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AccessToken:  "token",
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	svc.baseURL = server.URL
	return svc, server
}

func TestNewSpotifyService(t *testing.T) {
	t.Run("requires client credentials", func(t *testing.T) {
		_, err := NewSpotifyService(shared.SpotifyConfig{})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("access token readies the client", func(t *testing.T) {
		svc, err := NewSpotifyService(shared.SpotifyConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			AccessToken:  "token",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc.token == nil {
			t.Error("expected token to be set")
		}
	})
}

func TestSpotifyService_PlaylistTracks(t *testing.T) {
	t.Run("pages to completion with dense indexes", func(t *testing.T) {
		var svc *SpotifyService
		pageSize := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pageSize++
			offset := r.URL.Query().Get("offset")

			page := map[string]any{"total": 3}
			if offset == "0" {
				next := "more"
				page["items"] = []map[string]any{
					{"track": map[string]any{"id": "t1", "name": "One", "duration_ms": 60000, "artists": []map[string]any{{"name": "A"}}}},
					{"track": nil}, // local file, skipped
					{"track": map[string]any{"id": "t2", "name": "Two", "duration_ms": 90000, "artists": []map[string]any{{"name": "B"}, {"name": "C"}}}},
				}
				page["next"] = next
			} else {
				page["items"] = []map[string]any{
					{"track": map[string]any{"id": "t3", "name": "Three", "duration_ms": 120000, "artists": []map[string]any{{"name": "D"}}}},
				}
				page["next"] = nil
			}
			json.NewEncoder(w).Encode(page)
		})
		svc, _ = newTestSpotify(t, handler)

		tracks, err := svc.PlaylistTracks(context.Background(), "pl1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(tracks))
		}
		for i, track := range tracks {
			if track.SourceIndex != i {
				t.Errorf("track %d has source index %d", i, track.SourceIndex)
			}
		}
		if tracks[1].Artist != "B" || len(tracks[1].AdditionalArtists) != 1 {
			t.Errorf("expected primary artist B with one additional, got %+v", tracks[1])
		}
		if pageSize != 2 {
			t.Errorf("expected 2 page fetches, got %d", pageSize)
		}
	})

	t.Run("maps 404 to ErrPlaylistNotFound", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := svc.PlaylistTracks(context.Background(), "missing")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("maps 403 to ErrPlaylistPrivate", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))

		_, err := svc.PlaylistTracks(context.Background(), "private")
		if !errors.Is(err, shared.ErrPlaylistPrivate) {
			t.Errorf("expected ErrPlaylistPrivate, got %v", err)
		}
	})

	t.Run("maps quota 403 to ErrQuotaExceeded", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"status": 403, "message": "API quota exceeded"},
			})
		}))

		_, err := svc.PlaylistTracks(context.Background(), "pl1")
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Errorf("expected ErrQuotaExceeded, got %v", err)
		}
	})

	t.Run("maps 5xx to ErrUpstreamUnavailable", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := svc.PlaylistTracks(context.Background(), "pl1")
		if !errors.Is(err, shared.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("429 carries retry-after hint", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := svc.PlaylistTracks(context.Background(), "pl1")
		var ra *RetryAfterError
		if !errors.As(err, &ra) {
			t.Fatalf("expected RetryAfterError, got %v", err)
		}
		if ra.After.Seconds() != 7 {
			t.Errorf("expected 7s retry-after, got %s", ra.After)
		}
		if !errors.Is(err, shared.ErrUpstreamUnavailable) {
			t.Error("RetryAfterError should unwrap to ErrUpstreamUnavailable")
		}
	})

	t.Run("429 without retry-after means the quota is spent", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := svc.PlaylistTracks(context.Background(), "pl1")
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Errorf("expected ErrQuotaExceeded, got %v", err)
		}
	})
}

func TestSpotifyService_Search(t *testing.T) {
	t.Run("returns candidates in relevance order", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("type"); got != "track" {
				t.Errorf("expected type=track, got %s", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": map[string]any{
					"items": []map[string]any{
						{"id": "a", "name": "First", "duration_ms": 200000, "artists": []map[string]any{{"name": "X"}}},
						{"id": "b", "name": "Second", "duration_ms": 210000, "artists": []map[string]any{{"name": "Y"}}},
					},
				},
			})
		}))

		candidates, err := svc.Search(context.Background(), "first x", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(candidates))
		}
		if candidates[0].Rank != 0 || candidates[1].Rank != 1 {
			t.Errorf("ranks should follow upstream order: %+v", candidates)
		}
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"tracks": map[string]any{"items": []any{}}})
		}))

		candidates, err := svc.Search(context.Background(), "nothing", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 0 {
			t.Errorf("expected no candidates, got %d", len(candidates))
		}
	})
}

func TestSpotifyService_CreateAndAppend(t *testing.T) {
	t.Run("creates playlist for current user", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/me":
				json.NewEncoder(w).Encode(map[string]string{"id": "user1"})
			case "/users/user1/playlists":
				var body map[string]any
				json.NewDecoder(r.Body).Decode(&body)
				json.NewEncoder(w).Encode(map[string]any{"id": "newpl", "name": body["name"]})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		pl, err := svc.CreatePlaylist(context.Background(), "My Mix", "migrated")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pl.ID != "newpl" || pl.Name != "My Mix" {
			t.Errorf("unexpected playlist: %+v", pl)
		}
	})

	t.Run("append prefixes bare IDs with the track URI scheme", func(t *testing.T) {
		var gotURIs []string
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				URIs []string `json:"uris"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			gotURIs = body.URIs
			w.WriteHeader(http.StatusCreated)
		}))

		if err := svc.AppendTracks(context.Background(), "pl1", []string{"abc", "spotify:track:def"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(gotURIs) != 2 || gotURIs[0] != "spotify:track:abc" || gotURIs[1] != "spotify:track:def" {
			t.Errorf("unexpected uris: %v", gotURIs)
		}
	})

	t.Run("append rejects oversized batches", func(t *testing.T) {
		svc, _ := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		ids := make([]string, spotifyAppendLimit+1)
		for i := range ids {
			ids[i] = "id"
		}
		if err := svc.AppendTracks(context.Background(), "pl1", ids); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSpotifyService_Unauthenticated(t *testing.T) {
	svc, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "c", ClientSecret: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Search(context.Background(), "q", 5); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSpotifyService_Authenticate(t *testing.T) {
	svc, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "c", ClientSecret: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Authenticate(context.Background(), map[string]string{"access_token": "tok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.token == nil || svc.token.AccessToken != "tok" {
		t.Errorf("token not stored: %+v", svc.token)
	}

	fresh := &SpotifyService{config: &oauth2.Config{}}
	if err := fresh.Authenticate(context.Background(), map[string]string{}); !errors.Is(err, shared.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}
