// OpenAI-backed [Disambiguator] implementation
//
// The model's reply is free-form text and is never trusted directly: it is
// parsed and validated against the known candidate index set before use.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// NoMatch is returned by Disambiguate when no candidate fits.
const NoMatch = -1

var indexRe = regexp.MustCompile(`\d+`)

// OpenAIService implements [Disambiguator] using the chat completions API.
type OpenAIService struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAIService creates a disambiguation client from configured credentials.
func NewOpenAIService(creds shared.OpenAIConfig, timeout time.Duration) (*OpenAIService, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api_key required", shared.ErrMissingCredentials)
	}

	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := creds.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OpenAIService{
		baseURL:    baseURL,
		apiKey:     creds.APIKey,
		model:      model,
		timeout:    timeout,
		httpClient: http.DefaultClient,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Disambiguate asks the model to pick the candidate matching the track.
//
// The prompt numbers candidates from 1 and constrains the reply to a single
// number or the word NONE. Any reply outside the candidate index set, and any
// parse failure, yields NoMatch rather than an error: the oracle is best
// effort and a bad answer must not fail the track.
func (o *OpenAIService) Disambiguate(ctx context.Context, track models.Track, candidates []models.Candidate) (int, error) {
	if len(candidates) == 0 {
		return NoMatch, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reply, err := o.complete(ctx, buildPrompt(track, candidates))
	if err != nil {
		return NoMatch, err
	}

	return parseChoice(reply, len(candidates)), nil
}

// complete performs one chat completion call and returns the raw reply text.
func (o *OpenAIService) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: openai status %d", shared.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", shared.ErrUpstreamUnavailable)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// buildPrompt renders the track and numbered candidates with a constrained answer format.
func buildPrompt(track models.Track, candidates []models.Candidate) string {
	var b strings.Builder

	b.WriteString("You are matching a song across music platforms.\n")
	fmt.Fprintf(&b, "Original: %q by %q", track.Title, track.Artist)
	if track.Album != "" {
		fmt.Fprintf(&b, " (album: %s)", track.Album)
	}
	if track.Duration > 0 {
		fmt.Fprintf(&b, " [%s]", shared.FormatDuration(track.Duration))
	}
	b.WriteString("\nCandidates:\n")

	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %q by %q", i+1, c.Title, c.Artist)
		if c.Album != "" {
			fmt.Fprintf(&b, " (album: %s)", c.Album)
		}
		if c.Duration > 0 {
			fmt.Fprintf(&b, " [%s]", shared.FormatDuration(c.Duration))
		}
		b.WriteString("\n")
	}

	b.WriteString("Answer with only the number of the candidate that is the same recording, or NONE if none fit.")
	return b.String()
}

// parseChoice validates a free-form reply against the candidate index set.
// Returns a 0-based index, or NoMatch for NONE, out-of-range, or unparseable replies.
func parseChoice(reply string, count int) int {
	reply = strings.TrimSpace(reply)
	if strings.EqualFold(reply, "NONE") || strings.Contains(strings.ToUpper(reply), "NONE") {
		return NoMatch
	}

	match := indexRe.FindString(reply)
	if match == "" {
		return NoMatch
	}

	n, err := strconv.Atoi(match)
	if err != nil || n < 1 || n > count {
		return NoMatch
	}

	return n - 1
}
