package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/belanjaku/internal/auth"
	"github.com/hitoshi/belanjaku/internal/metrics"
	"github.com/hitoshi/belanjaku/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	SessionParser     middleware.SessionParser
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Guard             middleware.GuardConfig
	HSTS              bool

	// 認証
	Accounts   Registrar
	Gateway    SessionGateway
	OAuth      auth.OAuthProvider
	Verifier   EmailVerifier
	AuthConfig AuthHandlerConfig

	// 画面
	Users UserFinder

	// 運用
	HealthChecks   HealthChecks
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS → Session → RouteGuard
//
// ルートガードは未登録パスを含む全リクエストに適用する。
// /api/auth/* にはCSRF検証とno-storeを、状態変更系POSTにはレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionParser))
	// ルートガードがallowと判定したログイン・登録画面はno-storeを経由しない
	r.Use(middleware.NewRouteGuard(deps.Guard, deps.Metrics, middleware.NewNoStoreMiddleware()))

	authHandler := NewAuthHandler(deps.Accounts, deps.Gateway, deps.OAuth, deps.Verifier, deps.Metrics, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.Users)
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
	}

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecks))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証API ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.NewNoStoreMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Method(http.MethodGet, "/csrf", middleware.NewCSRFTokenHandler(csrfConfig))
		r.Get("/session", authHandler.Session)
		r.Post("/logout", authHandler.Logout)

		// OAuthフロー
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		r.Get("/verify-email", authHandler.VerifyEmail)

		// 未認証で叩ける状態変更系はクライアント単位でレート制限する
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/verify-email/resend", authHandler.ResendVerification)
		})
	})

	// --- 画面 ---
	r.Get("/", pageHandler.Home)
	r.Get("/login", pageHandler.Login)
	r.Get("/register", pageHandler.Register)
	r.Get("/profile", pageHandler.Profile)

	return r
}
