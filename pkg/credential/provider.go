// Package credential exchanges a Firebase service-account key for short-lived
// OAuth2 bearer tokens and caches them process-wide.
package credential

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Tokens are treated as expired this long before their actual expiry so
	// an in-flight FCM call never carries a token that lapses mid-request.
	expiryMargin = 60 * time.Second

	assertionTTL    = time.Hour
	exchangeTimeout = 10 * time.Second
	retryDelay      = 500 * time.Millisecond
)

// Error wraps any failure to produce a bearer token: unreadable or malformed
// secret, or a rejected exchange at the identity provider.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "credential: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// ServiceAccount is the subset of the Google service-account JSON the
// exchange needs.
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// Provider builds a signed JWT assertion from the service-account private key,
// exchanges it for a bearer token and caches the result until shortly before
// expiry. Safe for concurrent use.
type Provider struct {
	account    ServiceAccount
	signingKey *rsa.PrivateKey
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time

	mu     sync.RWMutex
	cached *oauth2.Token
}

// NewProvider loads the service-account JSON from path.
func NewProvider(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read service account", Err: err}
	}
	return NewProviderFromJSON(data)
}

// NewProviderFromJSON builds a Provider from raw service-account JSON.
func NewProviderFromJSON(data []byte) (*Provider, error) {
	var account ServiceAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, &Error{Op: "parse service account", Err: err}
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, &Error{Op: "parse service account", Err: fmt.Errorf("missing client_email or private_key")}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, &Error{Op: "parse private key", Err: err}
	}
	tokenURL := account.TokenURI
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}
	return &Provider{
		account:    account,
		signingKey: key,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: exchangeTimeout},
		now:        time.Now,
	}, nil
}

// ProjectID returns the Firebase project the credential belongs to.
func (p *Provider) ProjectID() string { return p.account.ProjectID }

// Token returns a bearer token with expiry strictly in the future. The cached
// token is reused until it is within the expiry margin; otherwise a refresh is
// performed. Callers never observe a partially written token: the cache holds
// an immutable *oauth2.Token that is swapped atomically under the lock.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.RLock()
	tok := p.cached
	p.mu.RUnlock()
	if p.valid(tok) {
		return tok, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	if p.valid(p.cached) {
		return p.cached, nil
	}

	tok, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	p.cached = tok
	logrus.WithField("expiry", tok.Expiry).Debug("bearer token refreshed")
	return tok, nil
}

func (p *Provider) valid(tok *oauth2.Token) bool {
	return tok != nil && tok.Expiry.After(p.now().Add(expiryMargin))
}

// fetch exchanges a signed assertion at the token endpoint, with one bounded
// retry on transient failures.
func (p *Provider) fetch(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.exchange(ctx)
	if err == nil {
		return tok, nil
	}
	if !retryable(err) {
		return nil, err
	}
	logrus.WithError(err).Warn("token exchange failed, retrying once")
	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return nil, &Error{Op: "exchange", Err: ctx.Err()}
	}
	return p.exchange(ctx)
}

// statusError marks exchange failures carrying an HTTP status, so retry
// policy can distinguish transient server trouble from a rejected key.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	var cerr *Error
	if !errors.As(err, &cerr) {
		return false
	}
	var serr *statusError
	if errors.As(cerr.Err, &serr) {
		return serr.status >= 500
	}
	// Network-level failure (timeout, refused connection).
	return true
}

func (p *Provider) exchange(ctx context.Context) (*oauth2.Token, error) {
	now := p.now()
	claims := jwt.MapClaims{
		"iss":   p.account.ClientEmail,
		"scope": messagingScope,
		"aud":   p.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.signingKey)
	if err != nil {
		return nil, &Error{Op: "sign assertion", Err: err}
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Op: "exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, &Error{Op: "exchange", Err: &statusError{status: resp.StatusCode, body: body.Error}}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{Op: "decode token response", Err: err}
	}
	if payload.AccessToken == "" {
		return nil, &Error{Op: "decode token response", Err: fmt.Errorf("missing access_token")}
	}
	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   tokenType,
		Expiry:      now.Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
