// Package services defines the collaborator interfaces consumed by the
// transfer engine and implements them for Spotify, YouTube Music, and OpenAI.
//
// # Interfaces
//
// The engine never depends on concrete clients:
//   - [SourceCatalog] : playlist metadata + paginated track extraction
//   - [Destination] : catalog search, playlist creation, ordered appends
//   - [Disambiguator] : best-effort candidate selection for ambiguous matches
//
// # Spotify Implementation
//
// [SpotifyService] talks to the Spotify Web API with OAuth2 credentials and
// implements both SourceCatalog and Destination. Track extraction pages
// /playlists/{id}/tracks to completion; appends are bounded at 100 URIs per
// call per the API's batch limit.
//
// # YouTube Music Implementation
//
// [YouTubeService] communicates with the FastAPI proxy wrapping ytmusicapi.
// The auth_file path is sent via the X-Auth-File header on each request.
// Track extraction follows the proxy's continuation tokens; appends are
// bounded at 50 video IDs per call.
//
// # OpenAI Implementation
//
// [OpenAIService] implements Disambiguator over the chat completions API with
// a constrained prompt. The reply is parsed then validated against the known
// candidate index set; anything else resolves to [NoMatch]. The oracle is
// best effort: it improves recall but is never required for correctness.
//
// # Error Handling
//
// Clients map upstream HTTP statuses onto the shared taxonomy:
//   - 404 : [shared.ErrPlaylistNotFound]
//   - 401 : [shared.ErrNotAuthenticated]
//   - 403 : [shared.ErrPlaylistPrivate]
//   - 429 : [RetryAfterError] (unwraps to [shared.ErrUpstreamUnavailable])
//   - 5xx and transport failures : [shared.ErrUpstreamUnavailable]
//
// Transient errors are eligible for retry by the engine's retry policy; the
// clients themselves never retry.
package services
