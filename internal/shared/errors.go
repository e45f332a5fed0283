package shared

import "fmt"

var (
	// Input errors: reported before any upstream call is made
	ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")
	ErrMalformedPlaylistID = fmt.Errorf("malformed playlist id")
	ErrInvalidArgument     = fmt.Errorf("invalid argument")
	ErrMissingArgument     = fmt.Errorf("missing required argument")

	// Access errors: fatal to the transfer
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrPlaylistPrivate  = fmt.Errorf("playlist is private")
	ErrQuotaExceeded    = fmt.Errorf("destination quota exceeded")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Transient upstream errors: retried, surfaced only once the retry budget is exhausted
	ErrUpstreamUnavailable = fmt.Errorf("upstream unavailable")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// Rate-limit denial: fatal, carries retry-after guidance
	ErrRateLimited = fmt.Errorf("rate limited")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
)
