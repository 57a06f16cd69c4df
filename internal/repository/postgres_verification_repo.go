package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/belanjaku/internal/model"
)

// PostgresVerificationTokenRepo はPostgreSQLを使用したメール確認トークンのリポジトリ。
type PostgresVerificationTokenRepo struct {
	db *sql.DB
}

// NewPostgresVerificationTokenRepo はPostgresVerificationTokenRepoを生成する。
func NewPostgresVerificationTokenRepo(db *sql.DB) *PostgresVerificationTokenRepo {
	return &PostgresVerificationTokenRepo{db: db}
}

// Create はトークンを保存する。
func (r *PostgresVerificationTokenRepo) Create(ctx context.Context, token *model.VerificationToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (token_hash, account_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		token.TokenHash, token.AccountID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification token: %w", err)
	}
	return nil
}

// Consume は有効期限内のトークンを削除して返す。
// DELETE ... RETURNINGで取得と削除を1文で行うため、同じトークンは一度しか使えない。
func (r *PostgresVerificationTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (*model.VerificationToken, error) {
	token := &model.VerificationToken{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM verification_tokens
		 WHERE token_hash = $1 AND expires_at > $2
		 RETURNING token_hash, account_id, expires_at, created_at`,
		tokenHash, now,
	).Scan(&token.TokenHash, &token.AccountID, &token.ExpiresAt, &token.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	return token, nil
}

// DeleteByAccountID は指定アカウントの未使用トークンをすべて削除する。
func (r *PostgresVerificationTokenRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete verification tokens: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VerificationTokenRepository = (*PostgresVerificationTokenRepo)(nil)
