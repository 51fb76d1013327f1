package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// IdentityProvider represents the minimal behaviour required from the
// upstream IdP: produce the authorize redirect, exchange a code, and resolve
// the caller's identity.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	ResolveIdentity(ctx context.Context, accessToken string) (UpstreamIdentity, error)
}

// upstreamScopes is the fixed, minimal scope request: profile plus verified
// email read.
var upstreamScopes = []string{"read:user", "user:email"}

// Provider talks to a GitHub-style upstream: OAuth2 code exchange plus a
// profile endpoint and a secondary verified-emails endpoint.
type Provider struct {
	oauthConfig *oauth2.Config
	profileURL  string
	emailsURL   string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewProvider initializes the upstream provider. Endpoints come from OIDC
// discovery when an issuer is configured, otherwise from the explicit
// authorize/token URLs.
func NewProvider(ctx context.Context, upstream UpstreamConfig, redirectURL string, logger *slog.Logger) (*Provider, error) {
	endpoint := oauth2.Endpoint{
		AuthURL:  upstream.AuthorizeURL,
		TokenURL: upstream.TokenURL,
	}
	if upstream.Issuer != "" {
		op, err := oidc.NewProvider(ctx, upstream.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discover upstream %s: %w", upstream.Issuer, err)
		}
		endpoint = op.Endpoint()
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     upstream.ClientID,
			ClientSecret: upstream.ClientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoint,
			Scopes:       upstreamScopes,
		},
		profileURL: upstream.ProfileURL,
		emailsURL:  upstream.EmailsURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}, nil
}

// AuthCodeURL constructs the authorization request for the upstream.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauthConfig.AuthCodeURL(state)
}

// Exchange posts the code with the broker's credentials and the authorize-time
// redirect_uri. Single attempt; upstream error text is carried through.
func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return "", flowErr(ErrTokenExchange, "upstream rejected code exchange: %s: %s", retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}
		return "", flowErr(ErrTokenExchange, "code exchange with upstream failed")
	}
	if tok.AccessToken == "" {
		return "", flowErr(ErrTokenExchange, "upstream response contained no access token")
	}
	return tok.AccessToken, nil
}

type profilePayload struct {
	ID    json.Number `json:"id"`
	Login string      `json:"login"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

type emailPayload struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ResolveIdentity fetches the caller's profile and, if the profile carries no
// email, falls back to the verified-emails listing preferring the primary
// verified entry.
func (p *Provider) ResolveIdentity(ctx context.Context, accessToken string) (UpstreamIdentity, error) {
	var profile profilePayload
	if err := p.getJSON(ctx, p.profileURL, accessToken, &profile); err != nil {
		return UpstreamIdentity{}, err
	}
	if profile.Login == "" {
		return UpstreamIdentity{}, flowErr(ErrProfileFetch, "upstream profile carried no login")
	}

	identity := UpstreamIdentity{
		ProviderID:  profile.ID.String(),
		Login:       profile.Login,
		DisplayName: profile.Name,
		Email:       profile.Email,
		AccessToken: accessToken,
	}

	if identity.Email == "" && p.emailsURL != "" {
		email, err := p.fetchVerifiedEmail(ctx, accessToken)
		if err != nil {
			p.logger.Warn("verified email lookup failed", "login", profile.Login, "error", err)
		} else {
			identity.Email = email
		}
	}

	return identity, nil
}

// fetchVerifiedEmail selects primary-and-verified first, then any verified.
func (p *Provider) fetchVerifiedEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []emailPayload
	if err := p.getJSON(ctx, p.emailsURL, accessToken, &emails); err != nil {
		return "", err
	}
	var verified string
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if verified == "" {
			verified = e.Email
		}
	}
	return verified, nil
}

func (p *Provider) getJSON(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return flowErr(ErrProfileFetch, "build upstream request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return flowErr(ErrProfileFetch, "upstream profile request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return flowErr(ErrProfileFetch, "upstream profile endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return flowErr(ErrProfileFetch, "read upstream profile response")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return flowErr(ErrProfileFetch, "decode upstream profile response")
	}
	return nil
}
