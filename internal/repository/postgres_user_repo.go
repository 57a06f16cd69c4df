package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/belanjaku/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

const userColumns = `id, email, role, name, image, provider, provider_user_id, created_at, updated_at, is_active`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// IDENTITY_STORE=postgres の場合にIdentity Storeとして使用する。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// emailの一意制約に違反した場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	var updatedAt sql.NullTime
	if user.UpdatedAt != nil {
		updatedAt = sql.NullTime{Time: *user.UpdatedAt, Valid: true}
	}
	var isActive sql.NullBool
	if user.IsActive != nil {
		isActive = sql.NullBool{Bool: *user.IsActive, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.Role, user.Name, user.Image,
		user.Provider, user.ProviderUserID, user.CreatedAt, updatedAt, isActive,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Merge は指定IDのユーザーにpatchの非nilフィールドを上書きし、更新後のレコードを返す。
// 対象が存在しない場合はnilを返す。
func (r *PostgresUserRepo) Merge(ctx context.Context, id string, patch UserPatch) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET
			name = COALESCE($2, name),
			image = COALESCE($3, image),
			provider = COALESCE($4, provider),
			provider_user_id = COALESCE($5, provider_user_id),
			role = COALESCE($6, role),
			updated_at = $7
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.Name, patch.Image, patch.Provider, patch.ProviderUserID, patch.Role, patch.UpdatedAt,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to merge user: %w", err)
	}
	return user, nil
}

// scanUser は1行をmodel.Userに読み込む。行が無い場合は(nil, nil)を返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var updatedAt sql.NullTime
	var isActive sql.NullBool

	err := row.Scan(
		&user.ID, &user.Email, &user.Role, &user.Name, &user.Image,
		&user.Provider, &user.ProviderUserID, &user.CreatedAt, &updatedAt, &isActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if updatedAt.Valid {
		t := updatedAt.Time
		user.UpdatedAt = &t
	}
	if isActive.Valid {
		b := isActive.Bool
		user.IsActive = &b
	}
	return user, nil
}

// isUniqueViolation はlib/pqのエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
