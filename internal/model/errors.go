package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnauthenticated  = "UNAUTHENTICATED"
	ErrCodeOAuthState       = "OAUTH_STATE_MISMATCH"
	ErrCodeOAuthFailed      = "OAUTH_FAILED"
	ErrCodeInvalidToken     = "INVALID_VERIFICATION_TOKEN"
	ErrCodeCSRF             = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディが解釈できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body is not valid JSON.",
		Category: "validation",
		Action:   "Send a JSON object with the documented fields.",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("Invalid input: %s", detail),
		Category: "validation",
		Action:   "Check the highlighted fields and try again.",
	}
}

// NewUnauthenticatedError はセッションが無い、または無効な場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "You are not signed in.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewOAuthStateError はOAuthのstate検証に失敗した場合のエラーを生成する。
func NewOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthState,
		Message:  "The sign-in request could not be verified.",
		Category: "auth",
		Action:   "Start the Google sign-in again from the login page.",
	}
}

// NewOAuthFailedError はGoogleとの認可コード交換に失敗した場合のエラーを生成する。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "Google sign-in failed.",
		Category: "auth",
		Action:   "Try again, or sign in with email and password.",
	}
}

// NewInvalidVerificationTokenError はメール確認トークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidVerificationTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "The verification link is invalid or has expired.",
		Category: "auth",
		Action:   "Request a new verification email.",
	}
}

// NewCSRFError はCSRFトークン検証エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitError はレート制限超過のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait a moment and retry.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please try again later.",
	}
}
