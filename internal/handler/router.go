package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/interviewagent/internal/metrics"
	"github.com/hitoshi/interviewagent/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 共通
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
	RequestTimeout time.Duration

	// ミドルウェア依存
	CORSAllowedOrigin string
	TokenVerifier     middleware.TokenVerifier
	PrincipalLoader   middleware.PrincipalLoader

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 面接
	InterviewService InterviewServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → Status(metrics) → Timeout → Identity
//
// Identityは全ルートに適用し、/api/interviews と /api/auth/me のみRequireAuthで保護する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(metrics.NewStatusMiddleware(collector))
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}
	r.Use(middleware.NewIdentityMiddleware(deps.TokenVerifier, deps.PrincipalLoader, collector, logger))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	interviewHandler := NewInterviewHandler(deps.InterviewService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Post("/api/auth/register", authHandler.Register)
	r.Post("/api/auth/login", authHandler.Login)

	// IdPログイン（OAuthフロー）
	r.Get("/oauth2/authorization/google", authHandler.ProviderLogin)
	r.Get("/login/oauth2/code/google", authHandler.ProviderCallback)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireAuthMiddleware())

		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/interviews", func(r chi.Router) {
			r.Post("/", interviewHandler.CreateInterview)
			r.Get("/", interviewHandler.ListInterviews)
			r.Get("/{id}", interviewHandler.GetInterview)
		})
	})

	return r
}
