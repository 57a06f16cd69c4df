package model

import "net/http"

// ErrorKind は認証処理の失敗分類。
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindInvalidInput     ErrorKind = "invalid_input"
	KindDuplicateEmail   ErrorKind = "duplicate_email"
	KindNotFound         ErrorKind = "not_found"
	KindEmailNotVerified ErrorKind = "email_not_verified"
	KindAuthorityError   ErrorKind = "authority_error"
)

// 応答メッセージ。クライアントはこの文言をそのまま表示する。
const (
	MsgInvalidInput      = "Invalid input data"
	MsgInvalidEmail      = "Invalid email format"
	MsgPasswordTooShort  = "Password must at least 8 characters"
	MsgEmailInUse        = "Email already in use"
	MsgRegisterSuccess   = "Register success."
	MsgRegisterFailed    = "Register failed"
	MsgUserNotFound      = "User not found in database"
	MsgEmailNotVerified  = "Email not verified"
	MsgInvalidCredential = "invalid credential"
	MsgLoginSuccess      = "Login success."
	MsgLoginFailed       = "Login failed"
)

// AuthResult はAccount Serviceの全操作が返す結果。
// 失敗は例外ではなくKindとStatusCodeで表現し、永続化はしない。
type AuthResult struct {
	Status     bool            `json:"status"`
	StatusCode int             `json:"statusCode"`
	Kind       ErrorKind       `json:"kind,omitempty"`
	Message    string          `json:"message"`
	User       *UserProjection `json:"user,omitempty"`
}

// OK は成功結果を生成する。
func OK(message string, user *UserProjection) AuthResult {
	return AuthResult{
		Status:     true,
		StatusCode: http.StatusOK,
		Message:    message,
		User:       user,
	}
}

// Fail は失敗結果を生成する。
func Fail(kind ErrorKind, statusCode int, message string) AuthResult {
	return AuthResult{
		Status:     false,
		StatusCode: statusCode,
		Kind:       kind,
		Message:    message,
	}
}
