// Package credential supplies API key or Entra ID token authentication for outbound calls.
package credential

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/xiaot623/voicerag/internal/domain"
)

// Scopes requested for each Azure service.
const (
	ScopeCognitiveServices = "https://cognitiveservices.azure.com/.default"
	ScopeSearch            = "https://search.azure.com/.default"
)

const defaultAuthorityHost = "https://login.microsoftonline.com"

// EntraConfig holds the service principal used when no API key is configured.
type EntraConfig struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	AuthorityHost string
}

// Configured reports whether enough is set to request tokens.
func (c EntraConfig) Configured() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// TokenURL returns the v2 token endpoint for the tenant.
func (c EntraConfig) TokenURL() string {
	host := c.AuthorityHost
	if host == "" {
		host = defaultAuthorityHost
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(host, "/"), c.TenantID)
}

// Credential authenticates requests with either an api-key header or a bearer token.
type Credential struct {
	apiKey string
	tokens oauth2.TokenSource
}

// APIKey returns a credential sending the api-key header.
func APIKey(key string) *Credential {
	return &Credential{apiKey: key}
}

// TokenSource returns a credential sending bearer tokens from ts.
func TokenSource(ts oauth2.TokenSource) *Credential {
	return &Credential{tokens: oauth2.ReuseTokenSource(nil, ts)}
}

// FromConfig prefers the API key and falls back to client credentials for the given scope.
func FromConfig(ctx context.Context, apiKey string, entra EntraConfig, scope string) (*Credential, error) {
	if apiKey != "" {
		return APIKey(apiKey), nil
	}
	if !entra.Configured() {
		return nil, fmt.Errorf("%w: no api key and no Entra ID client credentials", domain.ErrUnauthorized)
	}
	cc := &clientcredentials.Config{
		ClientID:     entra.ClientID,
		ClientSecret: entra.ClientSecret,
		TokenURL:     entra.TokenURL(),
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return TokenSource(cc.TokenSource(ctx)), nil
}

// Kind describes the credential for logs.
func (c *Credential) Kind() string {
	if c.apiKey != "" {
		return "api-key"
	}
	return "token"
}

// Apply sets the authentication header.
func (c *Credential) Apply(ctx context.Context, header http.Header) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.apiKey != "" {
		header.Set("api-key", c.apiKey)
		return nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	tok.SetAuthHeader(&http.Request{Header: header})
	return nil
}

// HTTPClient wraps base so that every request carries the credential.
func (c *Credential) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	var rt http.RoundTripper
	if c.apiKey != "" {
		rt = apiKeyTransport{key: c.apiKey, base: next}
	} else {
		rt = &oauth2.Transport{Source: c.tokens, Base: next}
	}
	return &http.Client{Transport: rt, Timeout: base.Timeout}
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("api-key", t.key)
	return t.base.RoundTrip(r)
}
