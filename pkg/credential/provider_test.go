package credential

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testAccountJSON(t *testing.T, tokenURI string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	account := map[string]string{
		"type":         "service_account",
		"project_id":   "demo-project",
		"private_key":  string(keyPEM),
		"client_email": "push@demo-project.iam.gserviceaccount.com",
		"token_uri":    tokenURI,
	}
	data, err := json.Marshal(account)
	if err != nil {
		t.Fatalf("marshal account: %v", err)
	}
	return data
}

func tokenEndpoint(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	var calls int32
	srv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != jwtBearerGrant {
			t.Errorf("grant_type = %q", got)
		}
		if r.PostForm.Get("assertion") == "" {
			t.Error("missing assertion")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	p, err := NewProviderFromJSON(testAccountJSON(t, srv.URL))
	if err != nil {
		t.Fatalf("NewProviderFromJSON: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		tok, err := p.Token(ctx)
		if err != nil {
			t.Fatalf("Token call %d: %v", i, err)
		}
		if tok.AccessToken != "tok-1" {
			t.Fatalf("access token = %q, want tok-1", tok.AccessToken)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", n)
	}
}

func TestTokenRefreshedWithinExpiryMargin(t *testing.T) {
	var calls int32
	srv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": map[int32]string{1: "tok-1", 2: "tok-2"}[n],
			"expires_in":   3600,
		})
	})

	p, err := NewProviderFromJSON(testAccountJSON(t, srv.URL))
	if err != nil {
		t.Fatalf("NewProviderFromJSON: %v", err)
	}

	now := time.Now()
	p.now = func() time.Time { return now }

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("first Token: %v", err)
	}

	// Walk the clock to 30s before expiry, inside the refresh margin.
	now = now.Add(3600*time.Second - 30*time.Second)
	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token: %v", err)
	}
	if tok.AccessToken != "tok-2" {
		t.Fatalf("access token = %q, want tok-2 after refresh", tok.AccessToken)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("token endpoint hit %d times, want 2", n)
	}
}

func TestTokenRetriesTransientFailureOnce(t *testing.T) {
	var calls int32
	srv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-after-retry",
			"expires_in":   3600,
		})
	})

	p, err := NewProviderFromJSON(testAccountJSON(t, srv.URL))
	if err != nil {
		t.Fatalf("NewProviderFromJSON: %v", err)
	}

	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "tok-after-retry" {
		t.Fatalf("access token = %q", tok.AccessToken)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("token endpoint hit %d times, want 2", n)
	}
}

func TestTokenDoesNotRetryRejectedKey(t *testing.T) {
	var calls int32
	srv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})

	p, err := NewProviderFromJSON(testAccountJSON(t, srv.URL))
	if err != nil {
		t.Fatalf("NewProviderFromJSON: %v", err)
	}

	if _, err := p.Token(context.Background()); err == nil {
		t.Fatal("expected error for rejected key")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("token endpoint hit %d times, want 1 (no retry)", n)
	}
}

func TestNewProviderFromJSONRejectsIncompleteAccount(t *testing.T) {
	if _, err := NewProviderFromJSON([]byte(`{"type":"service_account"}`)); err == nil {
		t.Fatal("expected error for account without key material")
	}
	if _, err := NewProviderFromJSON([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
