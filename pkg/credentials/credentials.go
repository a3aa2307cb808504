package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/ezoidc/ezanswer/pkg/providers"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

const assertionLifetime = time.Hour

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service account credential scoped to a set of permissions
type Credentials struct {
	Key        *ServiceAccountKey
	Scopes     []string
	HTTPClient HTTPClient
	// Clock used for assertion timestamps
	Now func() time.Time
}

type Option func(*Credentials)

func WithHTTPClient(client HTTPClient) Option {
	return func(c *Credentials) { c.HTTPClient = client }
}

func WithClock(now func() time.Time) Option {
	return func(c *Credentials) { c.Now = now }
}

func New(key *ServiceAccountKey, scopes []string, opts ...Option) *Credentials {
	c := &Credentials{
		Key:        key,
		Scopes:     scopes,
		HTTPClient: http.DefaultClient,
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read the key referenced by ref and build credentials from it. The key is
// read once, no token is requested.
func Load(ctx context.Context, resolver *providers.Resolver, ref models.SecretRef, scopes []string, opts ...Option) (*Credentials, error) {
	data, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	key, err := ParseServiceAccountKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}

	log.Debug().
		Str("client_email", key.ClientEmail).
		Str("project_id", key.ProjectID).
		Strs("scopes", scopes).
		Msg("loaded service account key")
	return New(key, scopes, opts...), nil
}

type assertionClaims struct {
	jwt.Claims
	Scope string `json:"scope"`
}

// Signed JWT presented to the token endpoint
func (c *Credentials) Assertion() (string, error) {
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if c.Key.PrivateKeyID != "" {
		opts = opts.WithHeader("kid", c.Key.PrivateKeyID)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: c.Key.rsaKey}, opts)
	if err != nil {
		return "", err
	}

	now := c.Now()
	claims := assertionClaims{
		Claims: jwt.Claims{
			Issuer:   c.Key.ClientEmail,
			Audience: jwt.Audience{c.Key.TokenURI},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(assertionLifetime)),
		},
		Scope: strings.Join(c.Scopes, " "),
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}

// Exchange a fresh assertion for an access token. Tokens are not cached,
// every call is a round trip to the token endpoint.
func (c *Credentials) Token(ctx context.Context) (*oauth2.Token, error) {
	assertion, err := c.Assertion()
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {GrantTypeJWTBearer},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Key.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var tokenError struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &tokenError) != nil || tokenError.Error == "" {
			return nil, fmt.Errorf("unexpected status code from token endpoint: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("unexpected status code from token endpoint: %d: %s: %s",
			resp.StatusCode, tokenError.Error, tokenError.ErrorDescription)
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err = json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}

	token := &oauth2.Token{
		AccessToken: tokenResponse.AccessToken,
		TokenType:   tokenResponse.TokenType,
	}
	if tokenResponse.ExpiresIn > 0 {
		token.Expiry = c.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second)
	}
	log.Debug().Time("expiry", token.Expiry).Msg("refreshed access token")

	return token, nil
}
