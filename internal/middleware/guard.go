package middleware

import (
	"net/http"
	"net/url"

	"github.com/hitoshi/belanjaku/internal/metrics"
)

// RouteAction はRoute Guardの判定結果。
type RouteAction int

const (
	// ActionPass は後続のミドルウェアチェーンを通してハンドラーに渡す。
	ActionPass RouteAction = iota
	// ActionAllow はチェーンを経由せず直接ハンドラーに渡す（未認証でのログイン画面など）。
	ActionAllow
	// ActionRedirectHome は認証済みユーザーをトップページへ戻す。
	ActionRedirectHome
	// ActionRedirectLogin は未認証ユーザーをログイン画面へ送る。
	ActionRedirectLogin
)

// String はメトリクスのラベル値を返す。
func (a RouteAction) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRedirectHome:
		return "redirect_home"
	case ActionRedirectLogin:
		return "redirect_login"
	default:
		return "pass"
	}
}

// RouteDecision はRoute Guardの判定とリダイレクト先。
type RouteDecision struct {
	Action   RouteAction
	Location string
}

// GuardConfig はRoute Guardの対象パス。パスは完全一致で判定する。
type GuardConfig struct {
	AuthOnlyPaths  []string
	ProtectedPaths []string
}

// DefaultGuardConfig は既定の対象パスを返す。
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		AuthOnlyPaths:  []string{"/login", "/register"},
		ProtectedPaths: []string{"/profile"},
	}
}

// DecideRoute はパスとトークンの有無だけからリダイレクト要否を判定する純粋関数。
// requestURIはログイン後の戻り先としてcallbackUrlに埋め込む。ロールは判定に使わない。
func DecideRoute(config GuardConfig, path, requestURI string, hasSession bool) RouteDecision {
	switch {
	case containsPath(config.AuthOnlyPaths, path):
		if hasSession {
			return RouteDecision{Action: ActionRedirectHome, Location: "/"}
		}
		return RouteDecision{Action: ActionAllow}

	case containsPath(config.ProtectedPaths, path):
		if !hasSession {
			if requestURI == "" {
				requestURI = path
			}
			return RouteDecision{
				Action:   ActionRedirectLogin,
				Location: "/login?callbackUrl=" + url.QueryEscape(requestURI),
			}
		}
		return RouteDecision{Action: ActionPass}

	default:
		return RouteDecision{Action: ActionPass}
	}
}

// NewRouteGuard はDecideRouteの判定を適用するミドルウェアを返す。
// セッションの有無はNewSessionMiddlewareが注入したSessionContextで判断するため、
// その後ろに配置すること。chainedはActionPassの場合にのみ適用される。
func NewRouteGuard(config GuardConfig, collector metrics.MetricsCollector, chained ...func(http.Handler) http.Handler) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return func(next http.Handler) http.Handler {
		wrapped := next
		for i := len(chained) - 1; i >= 0; i-- {
			wrapped = chained[i](wrapped)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasSession := SessionFromContext(r.Context())
			decision := DecideRoute(config, r.URL.Path, r.URL.RequestURI(), hasSession)
			collector.RecordRouteDecision(decision.Action.String())

			switch decision.Action {
			case ActionAllow:
				next.ServeHTTP(w, r)
			case ActionRedirectHome, ActionRedirectLogin:
				http.Redirect(w, r, decision.Location, http.StatusTemporaryRedirect)
			default:
				wrapped.ServeHTTP(w, r)
			}
		})
	}
}

// NewNoStoreMiddleware は個人向けページをキャッシュさせないヘッダーを付与する。
func NewNoStoreMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "private, no-store")
			next.ServeHTTP(w, r)
		})
	}
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}
