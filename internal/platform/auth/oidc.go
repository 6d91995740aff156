package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// OIDCProvider is the subset of an OpenID Connect discovery document the
// server uses.
type OIDCProvider struct {
	Issuer                  string   `json:"issuer"`
	JWKSURI                 string   `json:"jwks_uri"`
	TokenEndpoint           string   `json:"token_endpoint"`
	IDTokenSigningAlgValues []string `json:"id_token_signing_alg_values_supported"`

	client *http.Client
}

// Discover fetches issuer/.well-known/openid-configuration.
func Discover(ctx context.Context, issuer string, client *http.Client) (*OIDCProvider, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	issuer = strings.TrimRight(issuer, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch oidc discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oidc discovery: status %d", resp.StatusCode)
	}

	var p OIDCProvider
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode oidc discovery document: %w", err)
	}
	if p.JWKSURI == "" {
		return nil, errors.New("oidc discovery document missing jwks_uri")
	}
	if p.Issuer != "" && strings.TrimRight(p.Issuer, "/") != issuer {
		return nil, fmt.Errorf("oidc issuer mismatch: got %q, want %q", p.Issuer, issuer)
	}
	if len(p.IDTokenSigningAlgValues) > 0 && !p.SupportsAlg("RS256") {
		return nil, errors.New("oidc provider does not sign with RS256")
	}
	p.client = client
	return &p, nil
}

func (p *OIDCProvider) SupportsAlg(alg string) bool {
	return slices.Contains(p.IDTokenSigningAlgValues, alg)
}

// KeySet returns a key set over the provider's jwks_uri.
func (p *OIDCProvider) KeySet() *KeySet {
	return NewKeySet(p.JWKSURI, DefaultKeySetTTL, p.client)
}
