// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/belanjaku/internal/auth"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "belanjaku.session-token"

type contextKey string

var (
	sessionContextKey = contextKey("session")
	sessionHolderKey  = contextKey("session_holder")
)

// sessionHolder は外側のミドルウェア（ロギング）が内側で確定したセッションを参照するための入れ物。
type sessionHolder struct {
	session *SessionContext
}

func contextWithHolder(ctx context.Context, h *sessionHolder) context.Context {
	return context.WithValue(ctx, sessionHolderKey, h)
}

// SessionContext はリクエストごとに署名付きトークンから復元したセッション情報。
type SessionContext struct {
	Email     string
	Role      string
	ExpiresAt time.Time
}

// SessionParser はセッショントークンの検証に必要なインターフェース。
// auth.Gatewayの部分集合として定義する。
type SessionParser interface {
	ParseSession(token string) (*auth.SessionClaims, error)
}

// NewSessionMiddleware はCookieまたはAuthorizationヘッダーのトークンを検証し、
// 有効な場合にSessionContextをリクエストコンテキストに注入する。
// トークンが無い・無効な場合も拒否はせず、未認証のまま次に渡す。
func NewSessionMiddleware(parser SessionParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parser.ParseSession(token)
			if err != nil {
				if !errors.Is(err, auth.ErrSessionExpired) {
					slog.Debug("session token rejected",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			sc := &SessionContext{Email: claims.Email, Role: claims.Role}
			if claims.ExpiresAt != nil {
				sc.ExpiresAt = claims.ExpiresAt.Time
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sc)))
		})
	}
}

// TokenFromRequest はセッションCookie、なければBearerトークンを返す。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// SessionFromContext はリクエストコンテキストからSessionContextを取得する。
func SessionFromContext(ctx context.Context) (*SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey).(*SessionContext)
	return sc, ok && sc != nil
}

// ContextWithSession はコンテキストにSessionContextを注入する。
func ContextWithSession(ctx context.Context, sc *SessionContext) context.Context {
	if h, ok := ctx.Value(sessionHolderKey).(*sessionHolder); ok {
		h.session = sc
	}
	return context.WithValue(ctx, sessionContextKey, sc)
}
