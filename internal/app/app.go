package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/interviewagent/internal/auth"
	"github.com/hitoshi/interviewagent/internal/config"
	"github.com/hitoshi/interviewagent/internal/database"
	"github.com/hitoshi/interviewagent/internal/handler"
	"github.com/hitoshi/interviewagent/internal/interview"
	"github.com/hitoshi/interviewagent/internal/logger"
	"github.com/hitoshi/interviewagent/internal/metrics"
	"github.com/hitoshi/interviewagent/internal/repository"
	"github.com/hitoshi/interviewagent/internal/security"
	"github.com/hitoshi/interviewagent/internal/token"
	"github.com/hitoshi/interviewagent/internal/topics"
)

const (
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 5 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待機上限。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("command", cmd.String()),
		slog.Any("config", cfg),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. ワイヤリング
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, err := NewRouter(cfg, db, security.NewOutboundGuard(), registry, slog.Default())
	if err != nil {
		return err
	}

	// 3. HTTPサーバーの起動
	server := newHTTPServer(cfg, router)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// NewRouter は設定とDB接続から全依存関係を組み立て、HTTPハンドラーを返す。
// 署名鍵やOAuth設定が不正な場合はエラーを返す。
func NewRouter(
	cfg *config.Config,
	db *sql.DB,
	guard security.OutboundGuard,
	registry *prometheus.Registry,
	log *slog.Logger,
) (http.Handler, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	interviewRepo := repository.NewPostgresInterviewRepo(db)

	// 2. メトリクスの初期化
	collector := metrics.NewCollector(registry)

	// 3. トークンコーデックの初期化
	codec, err := token.NewCodec(token.Config{
		Secret: []byte(cfg.JWTSecretKey),
		TTL:    cfg.TokenTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	// 4. 認証サービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService, err := auth.NewService(
		oauthProvider,
		userRepo,
		auth.NewBcryptHasher(cfg.BcryptCost),
		codec,
		collector,
		auth.ServiceConfig{FrontendRedirectURL: cfg.FrontendRedirectURL},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	// 5. AIトピック生成クライアントの初期化（SSRF防止クライアント経由）
	if err := guard.ValidateEndpoint(cfg.GeminiEndpoint); err != nil {
		return nil, fmt.Errorf("invalid GEMINI_ENDPOINT: %w", err)
	}
	topicsClient := topics.NewClient(
		guard.NewSafeClient(cfg.GeminiTimeout),
		log,
		cfg.GeminiEndpoint,
		cfg.GeminiAPIKey,
		topics.WithRequestInterval(cfg.GeminiRequestInterval),
		topics.WithMetrics(collector),
	)

	// 6. 面接サービスの初期化
	interviewService := interview.NewService(interviewRepo, userRepo, topicsClient, security.NewTextSanitizer())

	// 7. ルーターの構築
	return handler.NewRouter(&handler.RouterDeps{
		Logger:         log,
		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		RequestTimeout: cfg.RequestTimeout,

		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TokenVerifier:     codec,
		PrincipalLoader:   authService,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure: isHTTPS(cfg.GoogleRedirectURL),
		},

		InterviewService: handler.NewInterviewServiceAdapter(interviewService),
	}), nil
}

// newHTTPServer はHTTPサーバーを生成する。
// WriteTimeoutはリクエストタイムアウトにAI呼び出しの余裕を加えた値にする。
func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

// isHTTPS はURLのスキームがhttpsかどうかを返す。
func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}
