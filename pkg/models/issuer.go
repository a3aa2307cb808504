package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/rs/zerolog/log"
)

// OIDC issuer whose tokens are accepted by the server
type Issuer struct {
	// Name given to the issuer in the policy input
	Name string `json:"name" yaml:"-"`
	// The issuer's URL
	Issuer string `json:"issuer" yaml:"issuer"`
	// The URI to obtain the JWKS from
	JWKSURI string `json:"jwks_uri,omitempty" yaml:"jwks_uri,omitempty"`
	// The content of the JWKS
	JWKS *JWKS `json:"jwks,omitempty" yaml:"jwks,omitempty"`
}

// Resolve the issuer's JWKS. Inline keys win, then the jwks_uri, then
// OIDC discovery.
func (i *Issuer) LoadJWKS(ctx context.Context, client *http.Client) error {
	if i.JWKS != nil {
		return nil
	}

	if i.JWKSURI == "" {
		uri, err := i.discoverJWKSURI(ctx, client)
		if err != nil {
			return err
		}
		i.JWKSURI = uri
		log.Debug().Str("issuer", i.Issuer).Str("jwks_uri", i.JWKSURI).Msg("discovered jwks_uri of issuer")
	}

	var jwks jose.JSONWebKeySet
	err := getJSON(ctx, client, i.JWKSURI, &jwks)
	if err != nil {
		return fmt.Errorf("failed to load jwks of issuer %s: %w", i.Issuer, err)
	}

	if len(jwks.Keys) == 0 {
		return fmt.Errorf("jwks uri %s returned no keys", i.JWKSURI)
	}

	i.JWKS = &JWKS{jwks.Keys}
	log.Debug().Str("issuer", i.Issuer).Int("keys", len(i.JWKS.Keys)).Msg("loaded jwks of issuer")

	return nil
}

func (i *Issuer) discoverJWKSURI(ctx context.Context, client *http.Client) (string, error) {
	var discovery struct {
		JwksUri string `json:"jwks_uri"`
	}
	url := strings.TrimSuffix(i.Issuer, "/") + "/.well-known/openid-configuration"
	err := getJSON(ctx, client, url, &discovery)
	if err != nil {
		return "", fmt.Errorf("failed to get openid-configuration for issuer %s: %w", i.Issuer, err)
	}
	if discovery.JwksUri == "" {
		return "", fmt.Errorf("openid-configuration of issuer %s has no jwks_uri", i.Issuer)
	}
	return discovery.JwksUri, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status code %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
