package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hitoshi/belanjaku/internal/account"
	"github.com/hitoshi/belanjaku/internal/auth"
	"github.com/hitoshi/belanjaku/internal/config"
	"github.com/hitoshi/belanjaku/internal/credential"
	"github.com/hitoshi/belanjaku/internal/database"
	"github.com/hitoshi/belanjaku/internal/handler"
	"github.com/hitoshi/belanjaku/internal/logger"
	"github.com/hitoshi/belanjaku/internal/mailer"
	"github.com/hitoshi/belanjaku/internal/metrics"
	"github.com/hitoshi/belanjaku/internal/middleware"
	"github.com/hitoshi/belanjaku/internal/repository"
	"github.com/hitoshi/belanjaku/internal/security"
	"github.com/hitoshi/belanjaku/internal/worker/cleanup"
)

// oauthClientTimeout はGoogleへの外向きリクエストのタイムアウト。
const oauthClientTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("identity_store", string(cfg.IdentityStore)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores は起動時に開いたストアをまとめたもの。
type stores struct {
	db     *sql.DB
	users  repository.UserRepository
	checks handler.HealthChecks
	close  func()
}

// openStores はCredential Store（PostgreSQL）とIdentity Storeを開く。
// Identity StoreはIDENTITY_STOREに従いMongoDBかPostgreSQLを選ぶ。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	// 1. PostgreSQL接続（Credential Storeは常にPostgreSQL）
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	s := &stores{
		db:     db,
		checks: handler.HealthChecks{"postgres": db},
		close:  func() { db.Close() },
	}

	// 2. Identity Store
	switch cfg.IdentityStore {
	case config.IdentityStorePostgres:
		s.users = repository.NewPostgresUserRepo(db)

	default:
		client, mdb, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			db.Close()
			return nil, err
		}
		users, err := repository.NewMongoUserRepo(ctx, mdb)
		if err != nil {
			_ = client.Disconnect(context.Background())
			db.Close()
			return nil, fmt.Errorf("failed to prepare mongo user store: %w", err)
		}
		slog.Info("mongo connection established", slog.String("database", cfg.MongoDatabase))

		s.users = users
		s.checks["mongo"] = mongoPinger{client: client}
		s.close = func() {
			_ = client.Disconnect(context.Background())
			db.Close()
		}
	}

	return s, nil
}

// mongoPinger はmongo.ClientをHealthCheckerに合わせる。
type mongoPinger struct {
	client *mongo.Client
}

func (p mongoPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}

// newMailSender はSMTPが設定されていればSMTPSenderを、なければログ出力のみのSenderを返す。
func newMailSender(cfg *config.Config) mailer.Sender {
	if !cfg.MailEnabled() {
		slog.Warn("SMTP_HOST is not set; verification emails are written to the log")
		return mailer.NewLogSender(slog.Default())
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

// buildHandler は全依存関係をワイヤリングしたHTTPハンドラーを返す。
// 戻り値のstop関数でバックグラウンドのゴルーチンを停止する。
func buildHandler(cfg *config.Config, s *stores) (http.Handler, func()) {
	// 1. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(s.db)
	tokenRepo := repository.NewPostgresVerificationTokenRepo(s.db)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	profiles := security.NewProfileSanitizer(ssrfGuard)

	// 4. Credential Authority
	authority := credential.NewLocalAuthority(
		accountRepo, tokenRepo, credential.NewArgon2Hasher(), newMailSender(cfg),
		credential.Config{
			BaseURL:         cfg.BaseURL,
			VerificationTTL: cfg.VerificationTTL,
		},
	)

	// 5. Account ServiceとSession Gateway
	accounts := account.NewService(s.users, authority, profiles, collector)
	gateway := auth.NewGateway(accounts, auth.NewTokenCodec(auth.TokenConfig{
		Secret: cfg.SessionSecret,
		Issuer: cfg.SessionIssuer,
		MaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
	}))
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   ssrfGuard.NewSafeClient(oauthClientTimeout),
	})

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimiterConfig(cfg.RateLimitAuth))
	guard := middleware.DefaultGuardConfig()
	if len(cfg.ProtectedPaths) > 0 {
		guard.ProtectedPaths = cfg.ProtectedPaths
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		SessionParser:     gateway,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Guard:             guard,
		HSTS:              cfg.CookieSecure,

		Accounts: accounts,
		Gateway:  gateway,
		OAuth:    oauthProvider,
		Verifier: authority,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		Users: s.users,

		HealthChecks:   s.checks,
		MetricsHandler: metrics.Handler(registry),
	})

	return router, rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := openStores(ctx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer s.close()

	router, stopBackground := buildHandler(cfg, s)
	defer stopBackground()

	// 期限切れ確認トークンの定期削除
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.TokenCleanupInterval > 0 {
		go cleanup.NewTokenCleanupJob(s.db, slog.Default()).Start(jobCtx, cfg.TokenCleanupInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	serveErr := make(chan error, 1)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
