// Package credential はパスワード認証アカウントを管理するCredential Authorityを提供する。
//
// アカウント作成、メールアドレス確認メールの送信、サインインの3操作を
// Authorityインターフェースとして公開する。Account Serviceはこの
// インターフェースにのみ依存し、実装はPostgreSQL上のLocalAuthorityが担う。
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/belanjaku/internal/mailer"
	"github.com/hitoshi/belanjaku/internal/model"
	"github.com/hitoshi/belanjaku/internal/repository"
)

// minPasswordLength はAuthority側で受け付ける最短パスワード長。
// Account Serviceはこれより厳しい8文字を先に検査する。
const minPasswordLength = 6

var (
	// ErrEmailInUse は同じメールアドレスのアカウントが既に存在する場合のエラー。
	ErrEmailInUse = errors.New("email address is already in use by another account")
	// ErrWeakPassword はパスワードが短すぎる場合のエラー。
	ErrWeakPassword = errors.New("password should be at least 6 characters")
	// ErrInvalidCredential はメールアドレスまたはパスワードが一致しない場合のエラー。
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAccountDisabled は無効化されたアカウントでサインインしようとした場合のエラー。
	ErrAccountDisabled = errors.New("account has been disabled")
	// ErrInvalidToken はメール確認トークンが存在しないか期限切れの場合のエラー。
	ErrInvalidToken = errors.New("verification token is invalid or expired")
)

// Authority はAccount Serviceが利用するCredential Authorityのインターフェース。
type Authority interface {
	// CreateAccount はメールアドレスとパスワードでアカウントを作成する。
	CreateAccount(ctx context.Context, email, password string) (*model.Account, error)
	// SendVerification はメールアドレス確認リンクを送信する。
	SendVerification(ctx context.Context, account *model.Account) error
	// SignIn はパスワードを照合し、アカウントを返す。
	// EmailVerifiedの判定は呼び出し側が行う。
	SignIn(ctx context.Context, email, password string) (*model.Account, error)
	// DeleteAccount はアカウントと未使用の確認トークンを削除する。
	// 登録途中で失敗した場合の取り消しに使う。
	DeleteAccount(ctx context.Context, id string) error
}

// Config はLocalAuthorityの設定。
type Config struct {
	BaseURL         string        // 確認リンクの組み立てに使う公開URL
	VerificationTTL time.Duration // 確認トークンの有効期間
}

// LocalAuthority はPostgreSQLとArgon2で実装したCredential Authority。
type LocalAuthority struct {
	accounts repository.AccountRepository
	tokens   repository.VerificationTokenRepository
	hasher   Hasher
	mail     mailer.Sender
	config   Config
	now      func() time.Time
}

// NewLocalAuthority はLocalAuthorityを生成する。
func NewLocalAuthority(
	accounts repository.AccountRepository,
	tokens repository.VerificationTokenRepository,
	hasher Hasher,
	mail mailer.Sender,
	config Config,
) *LocalAuthority {
	if config.VerificationTTL <= 0 {
		config.VerificationTTL = 24 * time.Hour
	}
	return &LocalAuthority{
		accounts: accounts,
		tokens:   tokens,
		hasher:   hasher,
		mail:     mail,
		config:   config,
		now:      time.Now,
	}
}

// CreateAccount はメールアドレスとパスワードでアカウントを作成する。
// 作成直後のアカウントはメールアドレス未確認状態となる。
func (a *LocalAuthority) CreateAccount(ctx context.Context, email, password string) (*model.Account, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := a.now()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("credential account created",
		slog.String("account_id", account.ID),
	)
	return account, nil
}

// SendVerification はメールアドレス確認トークンを発行し、確認リンクをメールで送る。
// DBにはトークンのSHA-256ハッシュのみを保存する。
func (a *LocalAuthority) SendVerification(ctx context.Context, account *model.Account) error {
	// 1. トークン生成
	rawToken, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	// 2. ハッシュを保存
	now := a.now()
	if err := a.tokens.Create(ctx, &model.VerificationToken{
		TokenHash: hashToken(rawToken),
		AccountID: account.ID,
		ExpiresAt: now.Add(a.config.VerificationTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	// 3. 確認リンクを送信
	link := a.verificationLink(rawToken)
	if err := a.mail.Send(ctx, mailer.Message{
		To:      account.Email,
		Subject: "Verify your BelanjaKu email address",
		Body: "Welcome to BelanjaKu!\n\n" +
			"Open the link below to verify your email address:\n" + link + "\n\n" +
			"The link expires in " + a.config.VerificationTTL.String() + ".",
	}); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	return nil
}

// SignIn はパスワードを照合し、アカウントを返す。
// アカウントが存在しない場合とパスワード不一致は同じErrInvalidCredentialにする。
func (a *LocalAuthority) SignIn(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredential
	}

	ok, err := a.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	if account.Disabled {
		return nil, ErrAccountDisabled
	}

	return account, nil
}

// DeleteAccount はアカウントと未使用の確認トークンを削除する。
// 送信済みの確認リンクはトークンの削除により無効になる。
func (a *LocalAuthority) DeleteAccount(ctx context.Context, id string) error {
	if err := a.tokens.DeleteByAccountID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete verification tokens: %w", err)
	}
	if err := a.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	slog.Info("credential account deleted",
		slog.String("account_id", id),
	)
	return nil
}

// VerifyEmail は確認リンクのトークンを消費し、アカウントを確認済みにする。
func (a *LocalAuthority) VerifyEmail(ctx context.Context, rawToken string) (*model.Account, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrInvalidToken
	}

	now := a.now()
	token, err := a.tokens.Consume(ctx, hashToken(rawToken), now)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidToken
	}

	if err := a.accounts.MarkEmailVerified(ctx, token.AccountID, now); err != nil {
		return nil, err
	}

	account, err := a.accounts.FindByID(ctx, token.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidToken
	}

	slog.Info("email verified", slog.String("account_id", account.ID))
	return account, nil
}

// ResendVerification は未確認アカウントに確認メールを再送する。
// アカウントが存在しない、または確認済みの場合は何もせずnilを返す。
func (a *LocalAuthority) ResendVerification(ctx context.Context, email string) error {
	account, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || account.EmailVerified {
		return nil
	}

	if err := a.tokens.DeleteByAccountID(ctx, account.ID); err != nil {
		return err
	}
	return a.SendVerification(ctx, account)
}

// verificationLink は確認用URLを組み立てる。
func (a *LocalAuthority) verificationLink(rawToken string) string {
	return strings.TrimRight(a.config.BaseURL, "/") +
		"/api/auth/verify-email?token=" + url.QueryEscape(rawToken)
}

// generateToken は暗号的に安全な確認トークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken はトークンの保存用ハッシュを返す。
func hashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// compile-time interface check
var _ Authority = (*LocalAuthority)(nil)
