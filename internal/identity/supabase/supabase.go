package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
)

const providerName = "supabase"

// Client implements identity.Provider against a Supabase/GoTrue auth API.
// It returns identity facts only; no cookie or routing decisions are made here.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	log     *zap.Logger
}

// New builds a Supabase auth client. baseURL is the project base URL,
// e.g. https://abcd.supabase.co
func New(baseURL, anonKey string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	if baseURL == "" || anonKey == "" {
		return nil, errors.New("supabase config missing required fields")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (c *Client) Name() string {
	return providerName
}

type userPayload struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         userPayload `json:"user"`
}

type apiError struct {
	Msg         string `json:"msg"`
	Description string `json:"error_description"`
}

func (e apiError) text() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Msg
}

func (c *Client) VerifyUser(ctx context.Context, accessToken string) (*identity.User, error) {
	if accessToken == "" {
		return nil, identity.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, identity.ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supabase user lookup returned status %d", resp.StatusCode)
	}

	var u userPayload
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("supabase user payload decode failed: %w", err)
	}
	if u.ID == "" {
		return nil, identity.ErrUnauthenticated
	}

	return &identity.User{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailConfirmedAt != "",
	}, nil
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*identity.Session, error) {
	if code == "" {
		return nil, identity.ErrUnauthenticated
	}

	tok, err := c.token(ctx, "authorization_code", map[string]string{
		"auth_code": code,
	})
	if err != nil {
		return nil, err
	}
	return c.sessionFromToken(tok), nil
}

// InstallSession converts the URL-visible pair into a provider-managed
// session. The pair is verified with the authority first; a rejected
// access credential falls back to a refresh so a still-valid refresh
// credential can rescue the hand-off.
func (c *Client) InstallSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, identity.ErrUnauthenticated
	}

	user, err := c.VerifyUser(ctx, accessToken)
	if errors.Is(err, identity.ErrUnauthenticated) {
		return c.refresh(ctx, refreshToken)
	}
	if err != nil {
		return nil, err
	}

	return &identity.Session{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    c.expiryOf(accessToken, 0, 0),
	}, nil
}

func (c *Client) RefreshSession(ctx context.Context, s identity.Session) (*identity.Session, error) {
	return c.refresh(ctx, s.RefreshToken)
}

func (c *Client) SignOut(ctx context.Context, s identity.Session) error {
	if s.AccessToken == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, s.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("supabase logout failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// An already-invalid session is a successful logout.
	if resp.StatusCode >= 500 {
		return fmt.Errorf("supabase logout returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if refreshToken == "" {
		return nil, identity.ErrUnauthenticated
	}

	tok, err := c.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	return c.sessionFromToken(tok), nil
}

func (c *Client) token(ctx context.Context, grantType string, body map[string]string) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/auth/v1/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		c.log.Warn("supabase token grant rejected",
			zap.String("grant_type", grantType),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", apiErr.text()),
		)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, identity.ErrUnauthenticated
		}
		return nil, fmt.Errorf("supabase token grant returned status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("supabase token payload decode failed: %w", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, errors.New("supabase token payload missing credentials")
	}

	return &tok, nil
}

func (c *Client) sessionFromToken(tok *tokenResponse) *identity.Session {
	return &identity.Session{
		UserID:       tok.User.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    c.expiryOf(tok.AccessToken, tok.ExpiresAt, tok.ExpiresIn),
	}
}

// expiryOf resolves the absolute expiry from the token response, falling
// back to the unverified exp claim of the access token. The claim is used
// only to schedule refresh; trust decisions always round-trip to the
// authority.
func (c *Client) expiryOf(accessToken string, expiresAt, expiresIn int64) time.Time {
	if expiresAt > 0 {
		return time.Unix(expiresAt, 0)
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err == nil {
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}

	// No expiry hint at all: force the gate to re-authenticate.
	return time.Now()
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("apikey", c.anonKey)
	if accessToken == "" {
		accessToken = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
}
