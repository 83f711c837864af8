package identity

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/errors"
)

type fakeProvider struct {
	exchangeErr error
	userErr     error
	principal   catalog.Principal
	revoked     []*oauth2.Token
}

func (f *fakeProvider) AuthCodeURL(state, redirectURL string) string {
	return "https://idp.test/auth?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "tok-" + code}, nil
}

func (f *fakeProvider) UserInfo(context.Context, *oauth2.Token) (catalog.Principal, error) {
	if f.userErr != nil {
		return catalog.Principal{}, f.userErr
	}
	return f.principal, nil
}

func (f *fakeProvider) Revoke(_ context.Context, tok *oauth2.Token) error {
	f.revoked = append(f.revoked, tok)
	return nil
}

func allowOnly(emails ...string) AllowList {
	return AllowListFunc(func(_ context.Context, email string) (bool, error) {
		for _, e := range emails {
			if e == email {
				return true, nil
			}
		}
		return false, nil
	})
}

func TestSignIn_Authorized(t *testing.T) {
	p := &fakeProvider{principal: catalog.Principal{ID: "g1", Email: "agent@example.com"}}

	got, err := SignIn(context.Background(), p, allowOnly("agent@example.com"), "abc", "http://localhost/callback")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.ID)
	assert.Empty(t, p.revoked)
}

func TestSignIn_NotOnAllowListRevokes(t *testing.T) {
	p := &fakeProvider{principal: catalog.Principal{ID: "g2", Email: "intruder@example.com"}}

	_, err := SignIn(context.Background(), p, allowOnly("agent@example.com"), "abc", "")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	require.Len(t, p.revoked, 1)
	assert.Equal(t, "tok-abc", p.revoked[0].AccessToken)
}

func TestSignIn_AllowListErrorRevokes(t *testing.T) {
	p := &fakeProvider{principal: catalog.Principal{Email: "agent@example.com"}}
	unavailable := errors.NewUnavailable(stderrors.New("db locked"))
	allow := AllowListFunc(func(context.Context, string) (bool, error) { return false, unavailable })

	_, err := SignIn(context.Background(), p, allow, "abc", "")
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Len(t, p.revoked, 1)
}

func TestSignIn_ExchangeRejected(t *testing.T) {
	p := &fakeProvider{exchangeErr: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}}

	_, err := SignIn(context.Background(), p, allowOnly(), "bad", "")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestSignIn_ExchangeNetworkError(t *testing.T) {
	p := &fakeProvider{exchangeErr: stderrors.New("dial tcp: timeout")}

	_, err := SignIn(context.Background(), p, allowOnly(), "abc", "")
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestSignIn_UserInfoFailureRevokes(t *testing.T) {
	p := &fakeProvider{userErr: stderrors.New("503")}

	_, err := SignIn(context.Background(), p, allowOnly(), "abc", "")
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Len(t, p.revoked, 1)
}

func TestSignIn_RequiresCode(t *testing.T) {
	_, err := SignIn(context.Background(), &fakeProvider{}, allowOnly(), "", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestNewState(t *testing.T) {
	a, err := NewState()
	require.NoError(t, err)
	b, err := NewState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	g := NewGoogleProvider(config.OAuthConfig{ClientID: "cid", ClientSecret: "secret"})
	assert.True(t, g.Configured())

	raw := g.AuthCodeURL("st", "http://localhost:8765/callback")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "http://localhost:8765/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "openid")
	assert.Equal(t, "select_account", q.Get("prompt"))

	assert.False(t, NewGoogleProvider(config.OAuthConfig{}).Configured())
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	g := NewGoogleProvider(config.OAuthConfig{ClientID: "cid", ClientSecret: "secret"})
	g.endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}

	tok, err := g.Exchange(context.Background(), "good", "http://localhost/callback")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)

	_, err = g.Exchange(context.Background(), "bad", "http://localhost/callback")
	var re *oauth2.RetrieveError
	assert.True(t, stderrors.As(err, &re))
}

func TestGoogleProvider_Revoke(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewGoogleProvider(config.OAuthConfig{})
	g.revokeURL = srv.URL

	require.NoError(t, g.Revoke(context.Background(), &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}))
	assert.Equal(t, "rt", got.Get("token"))

	require.NoError(t, g.Revoke(context.Background(), nil))
}

func TestGoogleProvider_RevokeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewGoogleProvider(config.OAuthConfig{})
	g.revokeURL = srv.URL

	assert.Error(t, g.Revoke(context.Background(), &oauth2.Token{AccessToken: "at"}))
}

func startCallback(t *testing.T, state string) *CallbackServer {
	t.Helper()
	s := NewCallbackServer(0, state)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestCallbackServer_ReceivesCode(t *testing.T) {
	s := startCallback(t, "st")
	assert.NotZero(t, s.Port())
	assert.Contains(t, s.RedirectURI(), fmt.Sprintf(":%d/callback", s.Port()))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?state=st&code=xyz", s.Port()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, err := s.WaitForCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "xyz", code)
}

func TestCallbackServer_StateMismatch(t *testing.T) {
	s := startCallback(t, "st")

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?state=other&code=xyz", s.Port()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = s.WaitForCode(ctx)
	assert.ErrorContains(t, err, "state mismatch")
}

func TestCallbackServer_ProviderError(t *testing.T) {
	s := startCallback(t, "st")

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?error=access_denied&error_description=denied", s.Port()))
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = s.WaitForCode(ctx)
	assert.ErrorContains(t, err, "access_denied")
}

func TestCallbackServer_Timeout(t *testing.T) {
	s := startCallback(t, "st")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.WaitForCode(ctx)
	assert.ErrorContains(t, err, "timeout")
}
