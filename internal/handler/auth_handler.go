// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/belanjaku/internal/account"
	"github.com/hitoshi/belanjaku/internal/auth"
	"github.com/hitoshi/belanjaku/internal/credential"
	"github.com/hitoshi/belanjaku/internal/metrics"
	"github.com/hitoshi/belanjaku/internal/middleware"
	"github.com/hitoshi/belanjaku/internal/model"
)

const (
	oauthStateCookie    = "belanjaku.oauth-state"
	oauthCallbackCookie = "belanjaku.callback-url"
	oauthCookieMaxAge   = 600 // 10分
)

// Registrar はパスワード登録を行うAccount Serviceの操作。
type Registrar interface {
	Register(ctx context.Context, in account.RegisterInput) model.AuthResult
}

// SessionGateway は認証ハンドラーが必要とするSession Gatewayの操作。
type SessionGateway interface {
	Authenticate(ctx context.Context, attempt auth.LoginAttempt) (*auth.IssuedSession, error)
	SessionMaxAge() time.Duration
}

// EmailVerifier はメールアドレス確認の完了と再送を行う。
type EmailVerifier interface {
	VerifyEmail(ctx context.Context, rawToken string) (*model.Account, error)
	ResendVerification(ctx context.Context, email string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	accounts  Registrar
	gateway   SessionGateway
	oauth     auth.OAuthProvider
	verifier  EmailVerifier
	collector metrics.MetricsCollector
	validator *requestValidator
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	accounts Registrar,
	gateway SessionGateway,
	oauth auth.OAuthProvider,
	verifier EmailVerifier,
	collector metrics.MetricsCollector,
	config AuthHandlerConfig,
) *AuthHandler {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &AuthHandler{
		accounts:  accounts,
		gateway:   gateway,
		oauth:     oauth,
		verifier:  verifier,
		collector: collector,
		validator: newRequestValidator(),
		config:    config,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=user seller"`
}

type loginRequest struct {
	Email       string `json:"email" validate:"max=254"`
	Password    string `json:"password" validate:"max=128"`
	CallbackURL string `json:"callbackUrl" validate:"omitempty,max=2048"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// loginResponse はログイン結果に遷移先を添えたレスポンス。
type loginResponse struct {
	model.AuthResult
	URL string `json:"url,omitempty"`
}

// sessionResponse はGET /api/auth/sessionのレスポンス。
type sessionResponse struct {
	Status  string       `json:"status"`
	User    *sessionUser `json:"user,omitempty"`
	Expires *time.Time   `json:"expires,omitempty"`
}

type sessionUser struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Register はメールアドレスとパスワードで会員登録する。
// 未認証の利用者が選べるロールはuserとsellerのみ。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.validator.decode(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	result := h.accounts.Register(r.Context(), account.RegisterInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Role:     req.Role,
	})
	writeJSON(w, result.StatusCode, result)
}

// Login はメールアドレスとパスワードでログインし、セッションCookieを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.validator.decode(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	issued, err := h.gateway.Authenticate(r.Context(), auth.Credentials{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.setSessionCookie(w, issued.Token)
	writeJSON(w, issued.Result.StatusCode, loginResponse{
		AuthResult: issued.Result,
		URL:        safeCallbackURL(req.CallbackURL),
	})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/auth/google/login?callbackUrl=/profile
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setShortLivedCookie(w, oauthStateCookie, state, oauthCookieMaxAge)
	if callback := safeCallbackURL(r.URL.Query().Get("callbackUrl")); callback != "" {
		h.setShortLivedCookie(w, oauthCallbackCookie, callback, oauthCookieMaxAge)
	}

	http.Redirect(w, r, h.oauth.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理し、セッションCookieを発行する。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewOAuthStateError())
		return
	}
	h.setShortLivedCookie(w, oauthStateCookie, "", -1)

	callback := "/"
	if c, err := r.Cookie(oauthCallbackCookie); err == nil {
		if safe := safeCallbackURL(c.Value); safe != "" {
			callback = safe
		}
		h.setShortLivedCookie(w, oauthCallbackCookie, "", -1)
	}

	// 2. 認可コードの交換
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("code"))
		return
	}

	profile, err := h.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		h.collector.RecordLoginAttempt(metrics.MethodGoogle, "exchange_failed")
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewOAuthFailedError())
		return
	}

	// 3. セッション発行
	issued, err := h.gateway.Authenticate(r.Context(), auth.Federated{
		Provider: model.ProviderGoogle,
		Profile:  *profile,
	})
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	// 4. セッションCookieを設定してリダイレクト
	h.setSessionCookie(w, issued.Token)
	http.Redirect(w, r, callback, http.StatusTemporaryRedirect)
}

// Session は現在のセッションを返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{Status: "unauthenticated"})
		return
	}

	expires := session.ExpiresAt
	writeJSON(w, http.StatusOK, sessionResponse{
		Status:  "authenticated",
		User:    &sessionUser{Email: session.Email, Role: session.Role},
		Expires: &expires,
	})
}

// Logout はセッションCookieを削除する。
// セッションはステートレスなため、サーバー側で破棄するものはない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail は確認リンクのトークンを消費し、ログイン画面へリダイレクトする。
// GET /api/auth/verify-email?token=xxx
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	_, err := h.verifier.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, credential.ErrInvalidToken) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidVerificationTokenError())
			return
		}
		slog.Error("failed to verify email", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.Redirect(w, r, "/login?verified=1", http.StatusTemporaryRedirect)
}

// ResendVerification は確認メールを再送する。
// アカウントの有無を推測されないよう、結果に関わらず202を返す。
// POST /api/auth/verify-email/resend
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := h.validator.decode(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := h.verifier.ResendVerification(r.Context(), req.Email); err != nil {
		slog.Error("failed to resend verification email", slog.String("error", err.Error()))
		h.collector.RecordVerificationEmail("failure")
	}

	w.WriteHeader(http.StatusAccepted)
}

// writeRejection はGatewayのエラーをレスポンスにする。
// RejectedErrorはAuthResultをそのまま返し、それ以外は500とする。
func (h *AuthHandler) writeRejection(w http.ResponseWriter, err error) {
	var rejected *auth.RejectedError
	if errors.As(err, &rejected) {
		writeJSON(w, rejected.Result.StatusCode, rejected.Result)
		return
	}
	slog.Error("failed to issue session", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.gateway.SessionMaxAge().Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) setShortLivedCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/api/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeCallbackURL はサイト内の相対パスのみを返す。
// スキーム付きURLやプロトコル相対URL（//host）は空文字にする。
func safeCallbackURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") ||
		strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return raw
}
