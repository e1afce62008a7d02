package speech

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"avatarsynth/internal/config"
)

// SubscriptionKeyHeader carries the resource key in key mode.
const SubscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// Authenticator produces the credential header for one outbound call.
// Header is called before every request so rotated credentials are picked up.
type Authenticator interface {
	Header(ctx context.Context) (http.Header, error)
	Mode() string
}

// KeyAuthenticator authenticates with a resource subscription key.
type KeyAuthenticator struct {
	key string
}

func NewKeyAuthenticator(key string) *KeyAuthenticator {
	return &KeyAuthenticator{key: key}
}

func (a *KeyAuthenticator) Mode() string { return config.AuthModeKey }

func (a *KeyAuthenticator) Header(ctx context.Context) (http.Header, error) {
	if a.key == "" {
		return nil, fmt.Errorf("speech auth: subscription key is empty")
	}
	h := make(http.Header, 1)
	h.Set(SubscriptionKeyHeader, a.key)
	return h, nil
}

// TokenAuthenticator authenticates with a bearer token from an oauth2.TokenSource.
// Tokens are cached until shortly before they expire.
type TokenAuthenticator struct {
	mode string
	src  oauth2.TokenSource
}

func NewTokenAuthenticator(mode string, src oauth2.TokenSource) *TokenAuthenticator {
	return &TokenAuthenticator{mode: mode, src: oauth2.ReuseTokenSource(nil, src)}
}

func (a *TokenAuthenticator) Mode() string { return a.mode }

func (a *TokenAuthenticator) Header(ctx context.Context) (http.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := a.src.Token()
	if err != nil {
		return nil, fmt.Errorf("speech auth: acquire token: %w", err)
	}
	h := make(http.Header, 1)
	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	return h, nil
}

// NewClientCredentialsSource returns a token source for a Microsoft Entra
// application registration.
func NewClientCredentialsSource(ctx context.Context, tenantID, clientID, clientSecret, scope string) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     microsoft.AzureADEndpoint(tenantID).TokenURL,
		Scopes:       []string{scope},
	}
	return cc.TokenSource(ctx)
}

// credentialSource adapts an azcore.TokenCredential to oauth2.TokenSource.
type credentialSource struct {
	cred    azcore.TokenCredential
	scope   string
	timeout time.Duration
}

// NewDefaultCredentialSource returns a token source backed by the Azure
// default credential chain (environment, workload identity, managed identity, CLI).
func NewDefaultCredentialSource(scope string) (oauth2.TokenSource, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("speech auth: default credential: %w", err)
	}
	return NewCredentialSource(cred, scope), nil
}

func NewCredentialSource(cred azcore.TokenCredential, scope string) oauth2.TokenSource {
	return &credentialSource{cred: cred, scope: scope, timeout: 30 * time.Second}
}

func (s *credentialSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	at, err := s.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{s.scope}})
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: at.Token,
		TokenType:   "Bearer",
		Expiry:      at.ExpiresOn,
	}, nil
}

// NewAuthenticator builds the authenticator selected by cfg.Mode.
func NewAuthenticator(ctx context.Context, cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeKey:
		return NewKeyAuthenticator(cfg.SubscriptionKey), nil
	case config.AuthModeClientCredentials:
		src := NewClientCredentialsSource(ctx, cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.Scope)
		return NewTokenAuthenticator(cfg.Mode, src), nil
	case config.AuthModeDefaultCredential:
		src, err := NewDefaultCredentialSource(cfg.Scope)
		if err != nil {
			return nil, err
		}
		return NewTokenAuthenticator(cfg.Mode, src), nil
	default:
		return nil, fmt.Errorf("speech auth: unknown mode %q", cfg.Mode)
	}
}
