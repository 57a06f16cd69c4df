package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/belanjaku/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したパスワード認証アカウントのリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, email_verified, disabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.Email, account.PasswordHash, account.EmailVerified,
		account.Disabled, account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	account, err := r.findOne(ctx, `WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := r.findOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// MarkEmailVerified はメールアドレス確認済みフラグを立てる。
func (r *PostgresAccountRepo) MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email_verified = TRUE, updated_at = $2 WHERE id = $1`,
		id, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

// Delete は指定IDのアカウントを削除する。
// verification_tokensはON DELETE CASCADEで一緒に削除される。
func (r *PostgresAccountRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, where string, arg string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, email_verified, disabled, created_at, updated_at
		 FROM accounts `+where,
		arg,
	).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.EmailVerified,
		&account.Disabled, &account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
