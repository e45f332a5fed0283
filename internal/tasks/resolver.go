package tasks

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

var (
	spotifyIDPattern = regexp.MustCompile(`^[0-9A-Za-z]+$`)
	youtubeIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)
)

// ResolvePlaylistURL determines the owning platform of a playlist URL and
// extracts its canonical identifier. Hosts outside the known platforms
// yield ErrUnsupportedPlatform; recognized hosts with a missing or invalid
// identifier yield ErrMalformedPlaylistID.
func ResolvePlaylistURL(raw string) (models.PlaylistRef, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return models.PlaylistRef{}, fmt.Errorf("%w: %q is not a playlist URL", shared.ErrUnsupportedPlatform, raw)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	switch {
	case host == "spotify.com" || strings.HasSuffix(host, ".spotify.com"):
		return resolveSpotifyURL(trimmed, parsed)
	case host == "music.youtube.com" || host == "youtube.com" || host == "youtu.be":
		return resolveYouTubeURL(trimmed, parsed)
	default:
		return models.PlaylistRef{}, fmt.Errorf("%w: unrecognized host %q", shared.ErrUnsupportedPlatform, host)
	}
}

func resolveSpotifyURL(raw string, parsed *url.URL) (models.PlaylistRef, error) {
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, segment := range segments {
		if segment != "playlist" {
			continue
		}

		if i+1 >= len(segments) || !spotifyIDPattern.MatchString(segments[i+1]) {
			break
		}

		return models.PlaylistRef{
			Platform: models.PlatformSpotify,
			ID:       segments[i+1],
			URL:      raw,
		}, nil
	}

	return models.PlaylistRef{}, fmt.Errorf("%w: no playlist identifier in %q", shared.ErrMalformedPlaylistID, raw)
}

func resolveYouTubeURL(raw string, parsed *url.URL) (models.PlaylistRef, error) {
	id := parsed.Query().Get("list")
	if id == "" || !youtubeIDPattern.MatchString(id) {
		return models.PlaylistRef{}, fmt.Errorf("%w: missing list parameter in %q", shared.ErrMalformedPlaylistID, raw)
	}

	return models.PlaylistRef{
		Platform: models.PlatformYouTubeMusic,
		ID:       id,
		URL:      raw,
	}, nil
}

// ResolveDestination maps a user-supplied platform name to a Platform.
func ResolveDestination(name string) (models.Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "spotify":
		return models.PlatformSpotify, nil
	case "youtube", "ytmusic", "youtube-music", "yt":
		return models.PlatformYouTubeMusic, nil
	default:
		return models.PlatformUnknown, fmt.Errorf("%w: unknown destination %q", shared.ErrUnsupportedPlatform, name)
	}
}
