package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope grants read-only access to the account's catalog data.
const Scope = "https://www.googleapis.com/auth/youtube.readonly"

// FlowFunc performs the interactive credential grant. The mechanics live in
// the presentation layer; the session only needs the resulting token.
type FlowFunc func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// Session holds the OAuth credential and restores it silently from the
// persisted token. Expired-but-refreshable tokens are refreshed on use by the
// token source; interactive re-authentication happens only through
// Authenticate, never implicitly from data-fetch calls.
type Session struct {
	clientSecretFile string
	tokenFile        string
	flow             FlowFunc

	cfg   *oauth2.Config
	token *oauth2.Token
}

// NewSession creates a session backed by the given credential files.
func NewSession(clientSecretFile, tokenFile string, flow FlowFunc) *Session {
	return &Session{
		clientSecretFile: clientSecretFile,
		tokenFile:        tokenFile,
		flow:             flow,
	}
}

// Restore attempts a silent restore from the persisted token and reports
// whether a usable credential is now held.
func (s *Session) Restore() bool {
	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return false
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return false
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return false
	}
	s.token = &tok
	return true
}

// Valid reports whether the session holds a usable credential.
func (s *Session) Valid() bool {
	return s.token != nil && (s.token.Valid() || s.token.RefreshToken != "")
}

// Authenticate runs the interactive grant flow. With force false a valid
// restored credential short-circuits the flow.
func (s *Session) Authenticate(ctx context.Context, force bool) error {
	if !force && (s.Valid() || s.Restore()) {
		return nil
	}
	cfg, err := s.config()
	if err != nil {
		return err
	}
	if s.flow == nil {
		return &AuthError{Reason: "no interactive flow configured"}
	}
	tok, err := s.flow(ctx, cfg)
	if err != nil {
		return &AuthError{Reason: err.Error()}
	}
	s.token = tok
	return s.persist(tok)
}

// Client returns an HTTP client that attaches the credential and refreshes it
// transparently, persisting any refreshed token.
func (s *Session) Client(ctx context.Context) (*http.Client, error) {
	if !s.Valid() {
		return nil, &AuthError{Reason: "no credential; run authenticate first"}
	}
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	src := &persistingTokenSource{
		session: s,
		wrapped: cfg.TokenSource(ctx, s.token),
	}
	return oauth2.NewClient(ctx, src), nil
}

func (s *Session) config() (*oauth2.Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	data, err := os.ReadFile(s.clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("client secret not found at %s: %w "+
			"(download it once from the API console)", s.clientSecretFile, err)
	}
	cfg, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	s.cfg = cfg
	return cfg, nil
}

func (s *Session) persist(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.tokenFile, data, 0600)
}

// persistingTokenSource writes refreshed tokens back to disk so the next run
// restores silently.
type persistingTokenSource struct {
	session *Session
	wrapped oauth2.TokenSource
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.wrapped.Token()
	if err != nil {
		return nil, err
	}
	if p.session.token == nil || tok.AccessToken != p.session.token.AccessToken {
		p.session.token = tok
		_ = p.session.persist(tok)
	}
	return tok, nil
}
