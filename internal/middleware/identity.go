// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/interviewagent/internal/auth"
	"github.com/hitoshi/interviewagent/internal/metrics"
	"github.com/hitoshi/interviewagent/internal/model"
	"github.com/hitoshi/interviewagent/internal/token"
)

const (
	bearerPrefix = "Bearer "
	// maxLoggedSubjectRunes はログに残すsubjectの最大文字数（メールアドレスの上限長）。
	maxLoggedSubjectRunes = 254
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストにプリンシパルを格納するためのキー。
var principalContextKey = contextKey("principal")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// token.Codecの部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
	ExtractSubject(tokenString string) (string, error)
}

// PrincipalLoader はsubjectからプリンシパルを解決する。
// 該当ユーザーがいない場合はauth.ErrPrincipalNotFoundを返す。
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, subject string) (*model.Principal, error)
}

// NewIdentityMiddleware はAuthorizationヘッダーのBearerトークンから
// リクエストのプリンシパルを確立するミドルウェアを返す。
//
// ヘッダーが無い、形式が違う、トークンが不正または期限切れの場合は匿名のまま後続へ渡す。
// 認可の判断は後続のNewRequireAuthMiddlewareに任せる。
// subjectに対応するユーザーが存在しない場合はerrorレベルで記録し匿名のまま続行する。
// ユーザーストアへの問い合わせ自体が失敗した場合のみ500を返す。
func NewIdentityMiddleware(verifier TokenVerifier, loader PrincipalLoader, collector metrics.MetricsCollector, logger *slog.Logger) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimSpace(header[len(bearerPrefix):])
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				outcome := metrics.OutcomeMalformed
				if errors.Is(err, token.ErrExpiredToken) {
					outcome = metrics.OutcomeExpired
				}
				collector.RecordTokenVerification(outcome)

				attrs := []any{
					slog.String("outcome", outcome),
					slog.String("path", r.URL.Path),
				}
				// 署名が正しいのは期限切れの場合のみ。それ以外のsubjectは送信者が自由に書ける
				if outcome == metrics.OutcomeExpired {
					if subject, serr := verifier.ExtractSubject(raw); serr == nil {
						attrs = append(attrs, slog.String("claimed_subject", truncateForLog(subject)))
					}
				}
				logger.Info("token rejected", attrs...)

				next.ServeHTTP(w, r)
				return
			}
			collector.RecordTokenVerification(metrics.OutcomeValid)

			principal, err := loader.LoadPrincipal(r.Context(), claims.Subject)
			if errors.Is(err, auth.ErrPrincipalNotFound) {
				logger.Error("token subject has no matching user",
					slog.String("subject", claims.Subject),
					slog.String("path", r.URL.Path),
				)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logger.Error("failed to load principal",
					slog.String("subject", claims.Subject),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			setLoggedSubject(r.Context(), principal.Subject)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// NewRequireAuthMiddleware はプリンシパルが確立されていないリクエストに401を返すミドルウェアを返す。
func NewRequireAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はリクエストコンテキストからプリンシパルを取得する。
// IDミドルウェアでプリンシパルが確立されたリクエストでのみokがtrueになる。
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// ContextWithPrincipal はコンテキストにプリンシパルを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// truncateForLog はログ出力用に文字列をmaxLoggedSubjectRunes文字までに切り詰める。
func truncateForLog(s string) string {
	runes := []rune(s)
	if len(runes) <= maxLoggedSubjectRunes {
		return s
	}
	return string(runes[:maxLoggedSubjectRunes]) + "..."
}
