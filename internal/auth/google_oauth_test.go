package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// newGoogleStub はトークンエンドポイントとUserInfoエンドポイントを持つテスト用サーバーを立てる。
func newGoogleStub(t *testing.T, tokenHandler, userInfoHandler http.HandlerFunc) (*httptest.Server, *GoogleOAuthProvider) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler)
	mux.HandleFunc("/oauth2/v2/userinfo", userInfoHandler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/api/auth/google/callback",
		HTTPClient:   ts.Client(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/auth",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoEndpoint: ts.URL + "/",
	})
	return ts, provider
}

func okToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "test-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/api/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("test-state-value")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("invalid login URL: %v", err)
	}
	if parsed.Host != "accounts.google.com" {
		t.Errorf("host = %q, want accounts.google.com", parsed.Host)
	}

	q := parsed.Query()
	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "test-client-id"},
		{"redirect_uri", "http://localhost:8080/api/auth/google/callback"},
		{"state", "test-state-value"},
		{"response_type", "code"},
		{"prompt", "select_account"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := q.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}

	scope := q.Get("scope")
	for _, s := range []string{"openid", "userinfo.email", "userinfo.profile"} {
		if !strings.Contains(scope, s) {
			t.Errorf("scope %q should contain %q", scope, s)
		}
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	_, provider := newGoogleStub(t,
		func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Errorf("failed to parse token form: %v", err)
			}
			if got := r.PostForm.Get("code"); got != "test-auth-code" {
				t.Errorf("code = %q, want test-auth-code", got)
			}
			if got := r.PostForm.Get("client_secret"); got != "test-client-secret" {
				t.Errorf("client_secret = %q", got)
			}
			okToken(w, r)
		},
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
				t.Errorf("unexpected Authorization header: %q", got)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":             "google-sub-12345",
				"email":          "user@gmail.com",
				"verified_email": true,
				"name":           "Google User",
				"picture":        "https://lh3.googleusercontent.com/a/photo.jpg",
			})
		},
	)

	profile, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if profile.Provider != "google" {
		t.Errorf("provider = %q, want google", profile.Provider)
	}
	if profile.ProviderUserID != "google-sub-12345" {
		t.Errorf("providerUserID = %q, want google-sub-12345", profile.ProviderUserID)
	}
	if profile.Email != "user@gmail.com" {
		t.Errorf("email = %q, want user@gmail.com", profile.Email)
	}
	if profile.Name != "Google User" {
		t.Errorf("name = %q, want Google User", profile.Name)
	}
	if profile.Image != "https://lh3.googleusercontent.com/a/photo.jpg" {
		t.Errorf("image = %q", profile.Image)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	_, provider := newGoogleStub(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":             "invalid_grant",
				"error_description": "Code was already redeemed.",
			})
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("user info must not be requested when the token exchange fails")
		},
	)

	if _, err := provider.ExchangeCode(context.Background(), "invalid-code"); err == nil {
		t.Fatal("expected error from ExchangeCode with invalid code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	_, provider := newGoogleStub(t, okToken, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error from ExchangeCode when user info fetch fails")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UnverifiedEmail(t *testing.T) {
	_, provider := newGoogleStub(t, okToken, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "google-sub-1",
			"email":          "user@gmail.com",
			"verified_email": false,
		})
	})

	_, err := provider.ExchangeCode(context.Background(), "valid-code")
	if !errors.Is(err, ErrUnverifiedProviderEmail) {
		t.Errorf("err = %v, want ErrUnverifiedProviderEmail", err)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_MissingEmail(t *testing.T) {
	_, provider := newGoogleStub(t, okToken, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "google-sub-1"})
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error when email is missing")
	}
}
