// Package model はドメインモデルを定義する。
package model

import "time"

const (
	// RoleUser は登録時にロール未指定の場合に付与される既定ロール。
	RoleUser = "user"
	// RoleSeller は出店者のロール。
	RoleSeller = "seller"
)

// ProviderGoogle はGoogleフェデレーションログインのプロバイダー名。
const ProviderGoogle = "google"

// User はストアフロントの利用者レコードを表す。
// 初回のパスワード登録または初回のフェデレーションログインで作成され、
// 以降はフェデレーションログイン時のマージでのみ更新される。
type User struct {
	ID             string     `bson:"_id" json:"id"`
	Email          string     `bson:"email" json:"email"`
	Role           string     `bson:"role" json:"role"`
	Name           string     `bson:"name,omitempty" json:"name,omitempty"`
	Image          string     `bson:"image,omitempty" json:"image,omitempty"`
	Provider       string     `bson:"provider,omitempty" json:"provider,omitempty"`
	ProviderUserID string     `bson:"provider_user_id,omitempty" json:"-"`
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt      *time.Time `bson:"updated_at,omitempty" json:"updatedAt,omitempty"`
	IsActive       *bool      `bson:"is_active,omitempty" json:"isActive,omitempty"`
}

// Projection はログイン応答に載せる公開フィールドのみを返す。
func (u *User) Projection() *UserProjection {
	return &UserProjection{
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// UserProjection はクライアントに返すユーザー情報。
type UserProjection struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// FederatedProfile は外部IdPから受け取ったプロフィール。
// Emailが照合キーになる。
type FederatedProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	Image          string
	Role           string
}
