package model

import "time"

// Account はCredential Authorityが管理するパスワード認証アカウント。
// IDはUserレコードのIDと一致する。
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	EmailVerified bool
	Disabled      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VerificationToken はメールアドレス確認リンクに埋め込むトークン。
// DBにはハッシュ値のみを保存する。
type VerificationToken struct {
	TokenHash string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
