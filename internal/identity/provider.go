// Package identity signs users in with an external OAuth identity provider and
// gates access through the authorized-user allow-list.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
)

// Provider is an OAuth identity provider.
type Provider interface {
	// AuthCodeURL returns the consent page URL for state and redirectURL.
	AuthCodeURL(state, redirectURL string) string

	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error)

	// UserInfo returns the profile of the token's owner.
	UserInfo(ctx context.Context, tok *oauth2.Token) (catalog.Principal, error)

	// Revoke invalidates a token.
	Revoke(ctx context.Context, tok *oauth2.Token) error
}

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// GoogleProvider signs users in with Google.
type GoogleProvider struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	revokeURL    string
	httpClient   *http.Client
}

// NewGoogleProvider creates a provider from the oauth config block.
func NewGoogleProvider(cfg config.OAuthConfig) *GoogleProvider {
	return &GoogleProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoint:     google.Endpoint,
		revokeURL:    googleRevokeURL,
		httpClient:   http.DefaultClient,
	}
}

// Configured reports whether client credentials are present.
func (g *GoogleProvider) Configured() bool {
	return g.clientID != "" && g.clientSecret != ""
}

func (g *GoogleProvider) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Endpoint:     g.endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope},
	}
}

// AuthCodeURL implements Provider.
func (g *GoogleProvider) AuthCodeURL(state, redirectURL string) string {
	return g.oauthConfig(redirectURL).AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange implements Provider.
func (g *GoogleProvider) Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	return g.oauthConfig(redirectURL).Exchange(ctx, code)
}

// UserInfo implements Provider.
func (g *GoogleProvider) UserInfo(ctx context.Context, tok *oauth2.Token) (catalog.Principal, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return catalog.Principal{}, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return catalog.Principal{}, fmt.Errorf("fetch user info: %w", err)
	}
	return catalog.Principal{
		ID:          info.Id,
		DisplayName: info.Name,
		Email:       catalog.NormalizeEmail(info.Email),
		AvatarURL:   info.Picture,
	}, nil
}

// Revoke implements Provider.
func (g *GoogleProvider) Revoke(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil {
		return nil
	}
	token := tok.RefreshToken
	if token == "" {
		token = tok.AccessToken
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke request failed with status %d", resp.StatusCode)
	}
	return nil
}
