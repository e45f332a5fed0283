// package models defines the value types that flow through a playlist transfer.
package models

import (
	"time"
)

// Platform identifies a supported music streaming service.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformSpotify
	PlatformYouTubeMusic
)

func (p Platform) String() string {
	switch p {
	case PlatformSpotify:
		return "spotify"
	case PlatformYouTubeMusic:
		return "youtube"
	default:
		return "unknown"
	}
}

// PlaylistRef identifies a playlist on a specific platform.
// Created once by the URL resolver and immutable afterwards.
type PlaylistRef struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
	URL      string   `json:"url"`
}

// Track is a platform-agnostic playlist entry.
//
// SourceIndex is the track's position in the source playlist (0-based, dense)
// and defines the ordering of the destination playlist and the report.
type Track struct {
	Title             string   `json:"title"`
	Artist            string   `json:"artist"`
	AdditionalArtists []string `json:"additional_artists,omitempty"`
	Album             string   `json:"album,omitempty"`
	Duration          int      `json:"duration,omitempty"` // Duration in seconds
	SourceIndex       int      `json:"source_index"`
}

// Candidate is a platform-native search result considered for matching.
// Ephemeral: produced per search call, discarded after resolution.
type Candidate struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"` // Duration in seconds
	Rank     int    `json:"rank"`               // Position in upstream relevance order, 0 = best
}

// MatchOutcome is the terminal state of one track's resolution.
type MatchOutcome int

const (
	OutcomeMatched MatchOutcome = iota
	OutcomeUnmatched
	OutcomeErrored
)

func (o MatchOutcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeUnmatched:
		return "unmatched"
	case OutcomeErrored:
		return "error"
	default:
		return ""
	}
}

// MatchStrategy names the technique that produced a MatchResult.
type MatchStrategy int

const (
	StrategyNone MatchStrategy = iota
	StrategyExact
	StrategyFuzzy
	StrategyAIAssisted
	StrategyFallbackQuery
)

func (s MatchStrategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyFuzzy:
		return "fuzzy"
	case StrategyAIAssisted:
		return "ai_assisted"
	case StrategyFallbackQuery:
		return "fallback_query"
	default:
		return "none"
	}
}

// MatchResult records the resolution of a single track.
// Exactly one result exists per extracted track; a retry replaces the slot, never appends.
type MatchResult struct {
	Track      Track         `json:"track"`
	Outcome    MatchOutcome  `json:"outcome"`
	Candidate  *Candidate    `json:"candidate,omitempty"` // Set only when Outcome is OutcomeMatched
	Strategy   MatchStrategy `json:"strategy"`
	Confidence float64       `json:"confidence,omitempty"` // 0.0-1.0, zero when not applicable
	Error      string        `json:"error,omitempty"`      // Reason, set only when Outcome is OutcomeErrored
}

// TransferStatus is the orchestrator's top-level state.
type TransferStatus int

const (
	StatusResolving TransferStatus = iota
	StatusExtracting
	StatusMatching
	StatusBuilding
	StatusCompleted
	StatusFailed
)

func (s TransferStatus) String() string {
	switch s {
	case StatusResolving:
		return "resolving"
	case StatusExtracting:
		return "extracting"
	case StatusMatching:
		return "matching"
	case StatusBuilding:
		return "building"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return ""
	}
}

// ReportCounts summarizes match outcomes.
type ReportCounts struct {
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Errored   int `json:"errored"`
	Total     int `json:"total"`
}

// TransferReport is the sole output artifact of a transfer.
//
// Results are ordered by Track.SourceIndex ascending regardless of the order
// concurrent resolution completed in.
type TransferReport struct {
	Source       PlaylistRef    `json:"source"`
	SourceName   string         `json:"source_name"`
	Destination  Platform       `json:"destination"`
	PlaylistID   string         `json:"playlist_id,omitempty"` // Destination playlist, once created
	PlaylistName string         `json:"playlist_name,omitempty"`
	PlaylistURL  string         `json:"playlist_url,omitempty"`
	Results      []MatchResult  `json:"results"`
	Appended     []string       `json:"appended"` // Candidate IDs confirmed appended, in playlist order
	Counts       ReportCounts   `json:"counts"`
	Status       TransferStatus `json:"status"`
}

// Tally recomputes Counts from Results.
func (r *TransferReport) Tally() {
	counts := ReportCounts{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeMatched:
			counts.Matched++
		case OutcomeUnmatched:
			counts.Unmatched++
		case OutcomeErrored:
			counts.Errored++
		}
	}
	r.Counts = counts
}

// Missing returns the tracks that did not reach the destination playlist.
func (r *TransferReport) Missing() []Track {
	var missing []Track
	for _, res := range r.Results {
		if res.Outcome != OutcomeMatched {
			missing = append(missing, res.Track)
		}
	}
	return missing
}

// QuotaDecision is the rate limiter's answer to a single check-and-consume call.
type QuotaDecision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
