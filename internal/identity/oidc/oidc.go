package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
)

const providerName = "oidc"

// Provider implements identity.Provider against any OIDC authority using
// discovery. It exists for deployments where the central login UI fronts
// a generic OIDC issuer instead of Supabase.
type Provider struct {
	provider    *gooidc.Provider
	oauthConfig *oauth2.Config
	log         *zap.Logger
}

// New initializes the provider using OIDC discovery.
// issuer must be the issuer URL, e.g. https://id.vanterra.com/realms/reporting
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	redirectURL string,
	log *zap.Logger,
) (*Provider, error) {

	if issuer == "" || clientID == "" {
		return nil, errors.New("oidc config missing required fields")
	}
	if log == nil {
		log = zap.NewNop()
	}

	oidcProvider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes: []string{
			gooidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	return &Provider{
		provider:    oidcProvider,
		oauthConfig: oauthCfg,
		log:         log,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// VerifyUser round-trips to the UserInfo endpoint so validity is proven
// by the authority, not inferred from locally decodable claims.
func (p *Provider) VerifyUser(ctx context.Context, accessToken string) (*identity.User, error) {
	if accessToken == "" {
		return nil, identity.ErrUnauthenticated
	}

	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		// The oauth2 transport surfaces a rejection as a RetrieveError.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, identity.ErrUnauthenticated
		}
		if strings.Contains(err.Error(), "401") {
			return nil, identity.ErrUnauthenticated
		}
		return nil, fmt.Errorf("oidc userinfo failed: %w", err)
	}

	var claims struct {
		EmailVerified bool `json:"email_verified"`
	}
	_ = info.Claims(&claims)

	return &identity.User{
		ID:            info.Subject,
		Email:         info.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (p *Provider) ExchangeCode(ctx context.Context, code string) (*identity.Session, error) {
	if code == "" {
		return nil, identity.ErrUnauthenticated
	}

	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		p.log.Warn("oidc code exchange failed", zap.Error(err))
		return nil, identity.ErrUnauthenticated
	}

	return p.sessionFromToken(ctx, token)
}

// InstallSession immediately rotates the URL-visible pair through a
// refresh grant so the credentials the gateway keeps were never exposed
// in a navigation chain.
func (p *Provider) InstallSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	if refreshToken == "" {
		return nil, identity.ErrUnauthenticated
	}

	token, err := p.oauthConfig.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	}).Token()
	if err != nil {
		p.log.Warn("oidc session install failed", zap.Error(err))
		return nil, identity.ErrUnauthenticated
	}

	return p.sessionFromToken(ctx, token)
}

func (p *Provider) RefreshSession(ctx context.Context, s identity.Session) (*identity.Session, error) {
	if s.RefreshToken == "" {
		return nil, identity.ErrUnauthenticated
	}

	token, err := p.oauthConfig.TokenSource(ctx, &oauth2.Token{
		RefreshToken: s.RefreshToken,
	}).Token()
	if err != nil {
		return nil, identity.ErrUnauthenticated
	}

	return p.sessionFromToken(ctx, token)
}

// SignOut revokes the refresh credential if the issuer advertises a
// revocation endpoint. Best effort.
func (p *Provider) SignOut(ctx context.Context, s identity.Session) error {
	var claims struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := p.provider.Claims(&claims); err != nil || claims.RevocationEndpoint == "" {
		return nil
	}
	if s.RefreshToken == "" {
		return nil
	}

	form := url.Values{
		"token":           {s.RefreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {p.oauthConfig.ClientID},
	}
	if p.oauthConfig.ClientSecret != "" {
		form.Set("client_secret", p.oauthConfig.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claims.RevocationEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("oidc revocation failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (p *Provider) sessionFromToken(ctx context.Context, token *oauth2.Token) (*identity.Session, error) {
	user, err := p.VerifyUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &identity.Session{
		UserID:       user.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}
