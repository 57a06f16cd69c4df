package credential

import (
	"fmt"

	"github.com/matthewhartstonge/argon2"
)

// Hasher はパスワードのハッシュ化と照合を行う。
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Argon2Hasher はArgon2idのPHC形式エンコード文字列でパスワードを保存する。
type Argon2Hasher struct {
	config argon2.Config
}

// NewArgon2Hasher はライブラリ既定のパラメータでArgon2Hasherを生成する。
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{config: argon2.DefaultConfig()}
}

// NewArgon2HasherWithConfig は任意のパラメータでArgon2Hasherを生成する。
// テストでコストを下げる場合に使う。
func NewArgon2HasherWithConfig(config argon2.Config) *Argon2Hasher {
	return &Argon2Hasher{config: config}
}

// Hash はパスワードをハッシュ化する。ソルトは呼び出しごとに生成される。
func (h *Argon2Hasher) Hash(password string) (string, error) {
	encoded, err := h.config.HashEncoded([]byte(password))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(encoded), nil
}

// Verify はパスワードがエンコード済みハッシュと一致するかを返す。
// エンコード文字列自体が壊れている場合のみエラーを返す。
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	ok, err := argon2.VerifyEncoded([]byte(password), []byte(encoded))
	if err != nil {
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
	return ok, nil
}

// compile-time interface check
var _ Hasher = (*Argon2Hasher)(nil)
