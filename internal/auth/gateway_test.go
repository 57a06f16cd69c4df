package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/belanjaku/internal/account"
	"github.com/hitoshi/belanjaku/internal/model"
)

// --- モック定義 ---

type mockAccountService struct {
	loginFn           func(ctx context.Context, in account.LoginInput) model.AuthResult
	loginWithGoogleFn func(ctx context.Context, profile model.FederatedProfile, onMerged func(*model.User)) model.AuthResult
}

func (m *mockAccountService) Login(ctx context.Context, in account.LoginInput) model.AuthResult {
	if m.loginFn != nil {
		return m.loginFn(ctx, in)
	}
	return model.Fail(model.KindNotFound, http.StatusNotFound, model.MsgUserNotFound)
}

func (m *mockAccountService) LoginWithGoogle(ctx context.Context, profile model.FederatedProfile, onMerged func(*model.User)) model.AuthResult {
	if m.loginWithGoogleFn != nil {
		return m.loginWithGoogleFn(ctx, profile, onMerged)
	}
	return model.Fail(model.KindAuthorityError, http.StatusInternalServerError, model.MsgLoginFailed)
}

// --- テスト ---

func TestAuthenticate_CredentialsSuccess(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	accounts := &mockAccountService{
		loginFn: func(ctx context.Context, in account.LoginInput) model.AuthResult {
			if in.Email != "a@b.com" || in.Password != "password1" {
				t.Errorf("unexpected input: %+v", in)
			}
			return model.OK(model.MsgLoginSuccess, &model.UserProjection{Email: "a@b.com", Role: "seller", CreatedAt: created})
		},
	}
	gw := NewGateway(accounts, newTestCodec())

	session, err := gw.Authenticate(context.Background(), Credentials{Email: "a@b.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	claims, err := gw.ParseSession(session.Token)
	if err != nil {
		t.Fatalf("ParseSession returned error: %v", err)
	}
	if claims.Email != "a@b.com" || claims.Role != "seller" {
		t.Errorf("claims = {%s, %s}, want {a@b.com, seller}", claims.Email, claims.Role)
	}
	if !session.ExpiresAt.Equal(claims.ExpiresAt.Time) {
		t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, claims.ExpiresAt.Time)
	}
	if !session.Result.Status {
		t.Error("expected successful result to be carried")
	}
}

func TestAuthenticate_CredentialsRejected(t *testing.T) {
	tests := []struct {
		name            string
		result          model.AuthResult
		wantNotVerified bool
		wantStatusCode  int
	}{
		{
			name:            "email not verified",
			result:          model.Fail(model.KindEmailNotVerified, http.StatusBadRequest, model.MsgEmailNotVerified),
			wantNotVerified: true,
			wantStatusCode:  http.StatusBadRequest,
		},
		{
			name:           "unknown user",
			result:         model.Fail(model.KindNotFound, http.StatusNotFound, model.MsgUserNotFound),
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:           "invalid credential",
			result:         model.Fail(model.KindAuthorityError, http.StatusInternalServerError, model.MsgInvalidCredential),
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewGateway(&mockAccountService{
				loginFn: func(context.Context, account.LoginInput) model.AuthResult { return tt.result },
			}, newTestCodec())

			session, err := gw.Authenticate(context.Background(), Credentials{Email: "a@b.com", Password: "password1"})
			if session != nil {
				t.Fatal("no session may be issued on rejection")
			}

			var rejected *RejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("err = %v, want *RejectedError", err)
			}
			if rejected.Result.StatusCode != tt.wantStatusCode {
				t.Errorf("status code = %d, want %d", rejected.Result.StatusCode, tt.wantStatusCode)
			}
			if got := errors.Is(err, ErrEmailNotVerified); got != tt.wantNotVerified {
				t.Errorf("errors.Is(err, ErrEmailNotVerified) = %v, want %v", got, tt.wantNotVerified)
			}
		})
	}
}

func TestAuthenticate_FederatedUsesMergedRecord(t *testing.T) {
	accounts := &mockAccountService{
		loginWithGoogleFn: func(ctx context.Context, profile model.FederatedProfile, onMerged func(*model.User)) model.AuthResult {
			if profile.Provider != model.ProviderGoogle {
				t.Errorf("provider = %q, want google", profile.Provider)
			}
			merged := &model.User{ID: "u-1", Email: "g@b.com", Role: "admin"}
			onMerged(merged)
			return model.OK(model.MsgLoginSuccess, merged.Projection())
		},
	}
	gw := NewGateway(accounts, newTestCodec())

	session, err := gw.Authenticate(context.Background(), Federated{
		Provider: model.ProviderGoogle,
		Profile:  model.FederatedProfile{Email: "g@b.com", Name: "G"},
	})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if session.Claims.Email != "g@b.com" || session.Claims.Role != "admin" {
		t.Errorf("claims = {%s, %s}, want {g@b.com, admin}", session.Claims.Email, session.Claims.Role)
	}
}

func TestAuthenticate_FederatedRejected(t *testing.T) {
	gw := NewGateway(&mockAccountService{}, newTestCodec())

	session, err := gw.Authenticate(context.Background(), Federated{
		Provider: model.ProviderGoogle,
		Profile:  model.FederatedProfile{Email: "g@b.com"},
	})
	if session != nil {
		t.Fatal("no session may be issued on rejection")
	}
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
	if errors.Is(err, ErrEmailNotVerified) {
		t.Error("generic failure must not match ErrEmailNotVerified")
	}
}

func TestAuthenticate_UnsupportedProvider(t *testing.T) {
	called := false
	gw := NewGateway(&mockAccountService{
		loginWithGoogleFn: func(context.Context, model.FederatedProfile, func(*model.User)) model.AuthResult {
			called = true
			return model.AuthResult{}
		},
	}, newTestCodec())

	_, err := gw.Authenticate(context.Background(), Federated{Provider: "github"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("err = %v, want ErrUnsupportedProvider", err)
	}
	if called {
		t.Error("account service must not be called for an unsupported provider")
	}
}

func TestGenerateState_Unique(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState returned error: %v", err)
	}
	b, _ := GenerateState()
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
	if a == b {
		t.Error("expected different states")
	}
}
