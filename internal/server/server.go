// package server runs the local HTTP listener that completes the OAuth
// authorization-code flow: it serves the redirect URI, validates the state
// parameter, and exchanges the code for a token.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// CallbackServer waits for a single OAuth callback on the redirect URI
// configured in the oauth2 config.
type CallbackServer struct {
	config *oauth2.Config
	state  string
	addr   string
	path   string

	once   sync.Once
	result chan callbackResult
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// NewCallbackServer derives the listen address and path from the config's
// redirect URL. The state token should be cryptographically random.
func NewCallbackServer(config *oauth2.Config, state string) (*CallbackServer, error) {
	redirect, err := url.Parse(config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", config.RedirectURL, err)
	}

	path := redirect.Path
	if path == "" {
		path = "/callback"
	}

	return &CallbackServer{
		config: config,
		state:  state,
		addr:   redirect.Host,
		path:   path,
		result: make(chan callbackResult, 1),
	}, nil
}

// Listen serves the redirect URI until one callback arrives, the context
// is cancelled, or the timeout elapses. Returns the exchanged token.
func (s *CallbackServer) Listen(ctx context.Context, timeout time.Duration) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s)
	srv := &http.Server{Handler: mux}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.send(callbackResult{err: err})
		}
	}()
	defer srv.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.result:
		return result.token, result.err
	case <-timer.C:
		return nil, fmt.Errorf("timed out waiting for authorization after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeHTTP handles the OAuth redirect: state check, then code exchange.
func (s *CallbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Get("state") != s.state {
		s.send(callbackResult{err: fmt.Errorf("invalid state parameter")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s - %s", query.Get("error"), query.Get("error_description"))
		s.send(callbackResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := s.config.Exchange(r.Context(), code)
	if err != nil {
		s.send(callbackResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	s.send(callbackResult{token: token})

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, "<html><body><h1>Authorization successful</h1><p>You can close this window and return to the terminal.</p></body></html>")
}

// send delivers the result exactly once; later callbacks are ignored.
func (s *CallbackServer) send(result callbackResult) {
	s.once.Do(func() {
		s.result <- result
	})
}
