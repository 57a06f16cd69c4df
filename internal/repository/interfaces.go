// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/belanjaku/internal/model"
)

// ErrDuplicateEmail は一意制約によりメールアドレスの重複が検出された場合のエラー。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーレコード（Identity Store）の永続化インターフェース。
// MongoDBとPostgreSQLの2つの実装を持つ。
type UserRepository interface {
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create は呼び出し側が採番したIDでユーザーを作成する。
	// メールアドレスが既に存在する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// Merge は指定IDのユーザーにpatchの非nilフィールドを上書きし、更新後のレコードを返す。
	// 対象が存在しない場合はnilを返す。
	Merge(ctx context.Context, id string, patch UserPatch) (*model.User, error)
}

// UserPatch はMergeで更新するフィールド。nilのフィールドは更新しない。
type UserPatch struct {
	Name           *string
	Image          *string
	Provider       *string
	ProviderUserID *string
	Role           *string
	UpdatedAt      time.Time
}

// AccountRepository はパスワード認証アカウントの永続化インターフェース。
type AccountRepository interface {
	// Create はアカウントを作成する。
	// メールアドレスが既に存在する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// MarkEmailVerified はメールアドレス確認済みフラグを立てる。
	MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error

	// Delete は指定IDのアカウントを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, id string) error
}

// VerificationTokenRepository はメール確認トークンの永続化インターフェース。
type VerificationTokenRepository interface {
	// Create はトークンを保存する。
	Create(ctx context.Context, token *model.VerificationToken) error

	// Consume は有効期限内のトークンを削除して返す。
	// 存在しないか期限切れの場合はnilを返す。
	Consume(ctx context.Context, tokenHash string, now time.Time) (*model.VerificationToken, error)

	// DeleteByAccountID は指定アカウントの未使用トークンをすべて削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}
