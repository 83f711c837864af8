package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/errors"
)

// AllowList decides whether an email may use the application.
type AllowList interface {
	IsAuthorized(ctx context.Context, email string) (bool, error)
}

// AllowListFunc adapts a function to AllowList.
type AllowListFunc func(ctx context.Context, email string) (bool, error)

// IsAuthorized implements AllowList.
func (f AllowListFunc) IsAuthorized(ctx context.Context, email string) (bool, error) {
	return f(ctx, email)
}

// SignIn completes the consent flow for code: exchange, profile lookup and
// allow-list check. A user who is not on the allow-list has the token
// revoked and gets UNAUTHORIZED, so no half-signed-in state remains.
func SignIn(ctx context.Context, p Provider, allow AllowList, code, redirectURL string) (catalog.Principal, error) {
	if code == "" {
		return catalog.Principal{}, errors.NewInvalidField("code", "is required")
	}

	tok, err := p.Exchange(ctx, code, redirectURL)
	if err != nil {
		var re *oauth2.RetrieveError
		if stderrors.As(err, &re) {
			return catalog.Principal{}, errors.NewUnauthorized("sign-in rejected by identity provider")
		}
		return catalog.Principal{}, errors.NewUnavailable(err)
	}

	principal, err := p.UserInfo(ctx, tok)
	if err != nil {
		revoke(ctx, p, tok)
		return catalog.Principal{}, errors.NewUnavailable(err)
	}

	ok, err := allow.IsAuthorized(ctx, principal.Email)
	if err != nil {
		revoke(ctx, p, tok)
		return catalog.Principal{}, err
	}
	if !ok {
		revoke(ctx, p, tok)
		slog.Info("sign-in rejected, not on allow-list", "email", principal.Email)
		return catalog.Principal{}, errors.NewUnauthorized("usuario no autorizado")
	}

	return principal, nil
}

func revoke(ctx context.Context, p Provider, tok *oauth2.Token) {
	if err := p.Revoke(ctx, tok); err != nil {
		slog.Warn("token revoke failed", "error", err)
	}
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
