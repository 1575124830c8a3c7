package linkedin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/storage"
	"github.com/linkedin-autopost/pkg/logger"
)

const tokenProvider = "linkedin"

// Endpoint is LinkedIn's OAuth 2.0 endpoint
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
	TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
	// LinkedIn wants client credentials in the form body
	AuthStyle: oauth2.AuthStyleInParams,
}

// OAuthManager handles LinkedIn OAuth 2.0 flow
type OAuthManager struct {
	config *oauth2.Config
	tokens storage.TokenStore // Optional, can be nil for env-only mode
	log    *logger.Logger

	// In-memory token storage (used when tokens is nil, or as cache)
	mu           sync.RWMutex
	currentToken *models.OAuthToken
}

// OAuthOption configures an OAuthManager
type OAuthOption func(*OAuthManager)

// WithEndpoint overrides the authorization and token URLs
func WithEndpoint(ep oauth2.Endpoint) OAuthOption {
	return func(m *OAuthManager) {
		m.config.Endpoint = ep
	}
}

// NewOAuthManager creates a new OAuth manager. A token from the
// configuration takes precedence over a stored one.
func NewOAuthManager(cfg config.LinkedInConfig, tokens storage.TokenStore, log *logger.Logger, opts ...OAuthOption) *OAuthManager {
	m := &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     Endpoint,
		},
		tokens: tokens,
		log:    log.WithComponent("oauth"),
	}
	for _, opt := range opts {
		opt(m)
	}

	// Initialize from config if access token provided (env vars)
	if cfg.AccessToken != "" {
		expiry, err := time.Parse(time.RFC3339, cfg.TokenExpiresAt)
		if err != nil {
			expiry = time.Now().Add(60 * 24 * time.Hour) // LinkedIn tokens live 60 days
		}

		m.currentToken = &models.OAuthToken{
			Provider:     tokenProvider,
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    expiry,
		}
		m.log.Debug().
			Time("expires_at", expiry).
			Msg("OAuth token initialized from environment")
	}

	return m
}

// GenerateState creates a random state for OAuth CSRF protection
func GenerateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// AuthURL returns the OAuth authorization URL
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state)
}

// ExchangeCode exchanges the authorization code for tokens
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*models.OAuthToken, error) {
	m.log.Info().Msg("Exchanging authorization code for token")

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	oauthToken := &models.OAuthToken{Provider: tokenProvider}
	oauthToken.FromOAuth2Token(token)
	if scope, ok := token.Extra("scope").(string); ok {
		oauthToken.Scope = scope
	}

	m.store(ctx, oauthToken)

	m.log.Info().
		Time("expires_at", token.Expiry).
		Msg("Token saved successfully")

	return oauthToken, nil
}

// GetValidToken returns a valid access token, refreshing if necessary
func (m *OAuthManager) GetValidToken(ctx context.Context) (*models.OAuthToken, error) {
	token := m.cached(ctx)
	if token == nil {
		return nil, errs.Configuration("no LinkedIn token: set LINKEDIN_ACCESS_TOKEN or run 'oauth login'")
	}

	if token.NeedsRefresh() {
		if token.RefreshToken == "" {
			if token.IsExpired() {
				return nil, errs.Configuration("LinkedIn token expired at %s and has no refresh token, please re-authenticate", token.ExpiresAt.Format(time.RFC3339))
			}
			return token, nil
		}
		m.log.Info().Msg("Token expiring soon, refreshing")
		return m.refreshToken(ctx, token)
	}

	return token, nil
}

func (m *OAuthManager) cached(ctx context.Context) *models.OAuthToken {
	m.mu.RLock()
	token := m.currentToken
	m.mu.RUnlock()
	if token != nil || m.tokens == nil {
		return token
	}

	stored, err := m.tokens.GetToken(ctx, tokenProvider)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			m.log.Warn().Err(err).Msg("Failed to load stored token")
		}
		return nil
	}
	m.mu.Lock()
	m.currentToken = stored
	m.mu.Unlock()
	return stored
}

func (m *OAuthManager) store(ctx context.Context, token *models.OAuthToken) {
	m.mu.Lock()
	m.currentToken = token
	m.mu.Unlock()

	if m.tokens != nil {
		if err := m.tokens.SaveToken(ctx, token); err != nil {
			m.log.Warn().Err(err).Msg("Failed to save token to database (using in-memory only)")
		}
	}
}

// refreshToken refreshes an expired token
func (m *OAuthManager) refreshToken(ctx context.Context, token *models.OAuthToken) (*models.OAuthToken, error) {
	// without an access token the source always goes to the token endpoint
	newToken, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransient, "refresh LinkedIn token", err)
	}

	refreshed := *token
	refreshed.FromOAuth2Token(newToken)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	m.store(ctx, &refreshed)

	m.log.Info().
		Time("expires_at", newToken.Expiry).
		Msg("Token refreshed successfully")

	return &refreshed, nil
}

// TokenStatus reports whether a token is present and when it expires
func (m *OAuthManager) TokenStatus(ctx context.Context) (valid bool, expiresAt time.Time, err error) {
	token := m.cached(ctx)
	if token == nil {
		return false, time.Time{}, errs.Wrap(errs.ErrNotFound, "LinkedIn token", nil)
	}
	return !token.IsExpired(), token.ExpiresAt, nil
}

// Login runs the authorization-code flow: it serves the redirect URI's
// callback path on its port, hands the authorization URL to open, and
// exchanges the code once the browser comes back.
func (m *OAuthManager) Login(ctx context.Context, open func(authURL string)) (*models.OAuthToken, error) {
	if m.config.ClientID == "" || m.config.ClientSecret == "" {
		return nil, errs.Configuration("LINKEDIN_CLIENT_ID and LINKEDIN_CLIENT_SECRET are required for login")
	}
	redirect, err := url.Parse(m.config.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, errs.Configuration("invalid redirect uri %q", m.config.RedirectURL)
	}

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath(redirect), func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			sendErr(errChan, errors.New("oauth state mismatch"))
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			http.Error(w, errMsg, http.StatusBadRequest)
			sendErr(errChan, fmt.Errorf("oauth error: %s - %s", errMsg, q.Get("error_description")))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			sendErr(errChan, errors.New("no code in callback"))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>Authorization successful</h1>
<p>You can close this window and return to the terminal.</p>
</body></html>`)
		select {
		case codeChan <- code:
		default:
		}
	})

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errChan, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	authURL := m.AuthURL(state)
	m.log.Info().
		Str("callback", m.config.RedirectURL).
		Msg("OAuth server started, waiting for callback")
	open(authURL)

	select {
	case code := <-codeChan:
		return m.ExchangeCode(ctx, code)
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
