// Package auth はSession Gatewayを提供する。
//
// パスワードログインとフェデレーションログインの2経路を、{email, role}を載せた
// 署名付きセッショントークンという1つの形に収束させる。
// 認証試行ごとの状態遷移は Unauthenticated → Pending → Issued | Rejected で、
// Rejectedの場合はトークンを一切発行しない。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/belanjaku/internal/account"
	"github.com/hitoshi/belanjaku/internal/model"
)

var (
	// ErrEmailNotVerified はメールアドレス未確認によるRejectedErrorに一致する。
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrUnsupportedProvider は未対応のIdPが指定された場合のエラー。
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
)

// LoginAttempt は1回の認証試行を表す。CredentialsかFederatedのいずれか。
type LoginAttempt interface {
	loginAttempt()
}

// Credentials はメールアドレスとパスワードによるログイン試行。
type Credentials struct {
	Email    string
	Password string
}

// Federated は外部IdPで認証済みのプロフィールによるログイン試行。
type Federated struct {
	Provider string
	Profile  model.FederatedProfile
}

func (Credentials) loginAttempt() {}
func (Federated) loginAttempt()   {}

// AccountService はGatewayが利用するAccount Serviceの操作。
type AccountService interface {
	Login(ctx context.Context, in account.LoginInput) model.AuthResult
	LoginWithGoogle(ctx context.Context, profile model.FederatedProfile, onMerged func(*model.User)) model.AuthResult
}

// RejectedError はAccount Serviceが失敗を返した認証試行。
type RejectedError struct {
	Result model.AuthResult
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Result.Message)
}

// Is はメールアドレス未確認による拒否をErrEmailNotVerifiedとして扱う。
func (e *RejectedError) Is(target error) bool {
	return target == ErrEmailNotVerified && e.Result.Kind == model.KindEmailNotVerified
}

// IssuedSession は発行済みのセッション。
type IssuedSession struct {
	Token     string
	Claims    *SessionClaims
	ExpiresAt time.Time
	Result    model.AuthResult
}

// Gateway はSession Gatewayの実装。
type Gateway struct {
	accounts AccountService
	codec    *TokenCodec
}

// NewGateway はGatewayを生成する。
func NewGateway(accounts AccountService, codec *TokenCodec) *Gateway {
	return &Gateway{accounts: accounts, codec: codec}
}

// Authenticate はログイン試行を処理し、成功時のみセッショントークンを発行する。
func (g *Gateway) Authenticate(ctx context.Context, attempt LoginAttempt) (*IssuedSession, error) {
	var (
		result model.AuthResult
		email  string
		role   string
	)

	switch a := attempt.(type) {
	case Credentials:
		result = g.accounts.Login(ctx, account.LoginInput{Email: a.Email, Password: a.Password})
		if result.Status && result.User != nil {
			email, role = result.User.Email, result.User.Role
		}

	case Federated:
		if a.Provider != model.ProviderGoogle {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, a.Provider)
		}
		profile := a.Profile
		profile.Provider = a.Provider
		// マージ後のレコードから進行中のクレームを組み立てる
		result = g.accounts.LoginWithGoogle(ctx, profile, func(u *model.User) {
			email, role = u.Email, u.Role
		})

	default:
		return nil, fmt.Errorf("unknown login attempt type %T", attempt)
	}

	if !result.Status {
		return nil, &RejectedError{Result: result}
	}
	if email == "" {
		return nil, &RejectedError{Result: model.Fail(model.KindAuthorityError, result.StatusCode, model.MsgLoginFailed)}
	}

	token, claims, err := g.codec.Issue(email, role)
	if err != nil {
		return nil, err
	}

	slog.Info("session issued",
		slog.String("session_id", claims.ID),
		slog.String("role", claims.Role),
	)

	return &IssuedSession{
		Token:     token,
		Claims:    claims,
		ExpiresAt: claims.ExpiresAt.Time,
		Result:    result,
	}, nil
}

// ParseSession は提示されたトークンから{email, role}を復元する。
// 署名と有効期限の検証のみで、Credential AuthorityやIdentity Storeには問い合わせない。
func (g *Gateway) ParseSession(token string) (*SessionClaims, error) {
	return g.codec.Parse(token)
}

// SessionMaxAge はセッションの有効期間を返す。
func (g *Gateway) SessionMaxAge() time.Duration {
	return g.codec.MaxAge()
}

// GenerateState はOAuthのstateやCSRFトークンに使う乱数文字列を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
