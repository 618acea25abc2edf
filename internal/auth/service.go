// Package auth はパスワード認証、外部IdPログインの橋渡し、
// リクエスト単位のプリンシパル解決を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewagent/internal/metrics"
	"github.com/hitoshi/interviewagent/internal/model"
	"github.com/hitoshi/interviewagent/internal/repository"
)

// ProviderPasswordSentinel はIdP経由で作成したアカウントのパスワードとしてハッシュ化する固定値。
// この値そのものでのパスワードログインは常に拒否する。
const ProviderPasswordSentinel = "OAUTH2_USER_NO_PASSWORD"

// dummyPassword は未登録メールアドレスでの照合に使うダミー値。
const dummyPassword = "dummy-password-for-timing-equalization"

// TokenIssuer はセッショントークンを発行する。
type TokenIssuer interface {
	Issue(subject string, extra map[string]any) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// FrontendRedirectURL はIdPログイン成功後のリダイレクト先（絶対URL）。
	FrontendRedirectURL string
}

// RegisterInput は新規登録の入力。
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	users     repository.UserRepository
	hasher    PasswordHasher
	tokens    TokenIssuer
	metrics   metrics.MetricsCollector
	frontend  *url.URL
	dummyHash string
	now       func() time.Time
}

// NewService はServiceを生成する。
// FrontendRedirectURLが絶対URLでない場合はエラーを返す。
func NewService(
	oauth OAuthProvider,
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) (*Service, error) {
	frontend, err := url.Parse(config.FrontendRedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid frontend redirect URL: %w", err)
	}
	if !frontend.IsAbs() || frontend.Host == "" {
		return nil, fmt.Errorf("frontend redirect URL must be absolute: %q", config.FrontendRedirectURL)
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	if collector == nil {
		collector = metrics.Nop{}
	}

	return &Service{
		oauth:     oauth,
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		metrics:   collector,
		frontend:  frontend,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

// Register はパスワード認証用のユーザーを新規登録する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if in.Password == ProviderPasswordSentinel {
		return nil, ErrReservedPassword
	}

	email := strings.TrimSpace(in.Email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyInUse
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyInUse
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Authenticate はメールアドレスとパスワードの組を検証する。
// ユーザーが存在しない場合とパスワードが一致しない場合は同じErrInvalidCredentialsを返す。
// ストアへのアクセス自体が失敗した場合はその原因をラップして返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil || password == ProviderPasswordSentinel {
		// 応答時間からメールアドレスの存在を推測させない
		_ = s.hasher.Compare(s.dummyHash, password)
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Warn("password comparison failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login はパスワード認証に成功した場合にセッショントークンを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginMethodPassword, metrics.LoginFailure)
		return "", err
	}

	token, err := s.tokens.Issue(user.Email, nil)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginMethodPassword, metrics.LoginFailure)
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordLogin(metrics.LoginMethodPassword, metrics.LoginSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", metrics.LoginMethodPassword),
	)
	return token, nil
}

// GetLoginURL はIdPの認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はIdPのコールバックを処理し、トークン付きのリダイレクト先URLを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, error) {
	identity, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginMethodProvider, metrics.LoginFailure)
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	return s.HandleProviderLogin(ctx, identity.Email, identity.DisplayName)
}

// HandleProviderLogin はIdPが検証済みとした属性からローカルアカウントを解決し、
// トークンをクエリパラメータに付与したフロントエンドのURLを返す。
// アカウントの保存に失敗した場合はトークンを発行しない。
func (s *Service) HandleProviderLogin(ctx context.Context, email, displayName string) (string, error) {
	user, err := s.ProcessProviderUser(ctx, ProviderIdentity{Email: email, DisplayName: displayName})
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginMethodProvider, metrics.LoginFailure)
		return "", err
	}

	token, err := s.tokens.Issue(user.Email, nil)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginMethodProvider, metrics.LoginFailure)
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	target := *s.frontend
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	s.metrics.RecordLogin(metrics.LoginMethodProvider, metrics.LoginSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", metrics.LoginMethodProvider),
		slog.String("redirect", MaskToken(target.String())),
	)
	return target.String(), nil
}

// ProcessProviderUser はIdPの属性に対応するローカルアカウントを作成または更新する。
// 既存アカウントは表示名が変わった場合のみ更新する。
// 新規アカウントのパスワードハッシュにはProviderPasswordSentinelのハッシュを設定する。
func (s *Service) ProcessProviderUser(ctx context.Context, identity ProviderIdentity) (*model.User, error) {
	identity = identity.normalized()
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProviderIdentity, err)
	}

	existing, err := s.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderAccountPersistence, err)
	}

	now := s.now()
	if existing != nil {
		if identity.DisplayName == "" || existing.FullName == identity.DisplayName {
			return existing, nil
		}
		updated := *existing
		updated.FullName = identity.DisplayName
		updated.UpdatedAt = now
		saved, err := s.users.Save(ctx, &updated)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderAccountPersistence, err)
		}
		slog.Info("provider user updated", slog.String("user_id", saved.ID))
		return saved, nil
	}

	hash, err := s.hasher.Hash(ProviderPasswordSentinel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderAccountPersistence, err)
	}

	saved, err := s.users.Save(ctx, &model.User{
		ID:           uuid.New().String(),
		Email:        identity.Email,
		FullName:     identity.DisplayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderAccountPersistence, err)
	}

	slog.Info("provider user created", slog.String("user_id", saved.ID))
	return saved, nil
}

// LoadPrincipal はトークンのsubjectをリクエスト単位のプリンシパルに解決する。
// ユーザーが存在しない場合はErrPrincipalNotFoundを返す。
func (s *Service) LoadPrincipal(ctx context.Context, subject string) (*model.Principal, error) {
	user, err := s.CurrentUser(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &model.Principal{
		Subject:   user.Email,
		UserID:    user.ID,
		Authority: model.AuthorityUser,
	}, nil
}

// CurrentUser はsubject（メールアドレス）に対応するユーザーを返す。
func (s *Service) CurrentUser(ctx context.Context, subject string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrPrincipalNotFound
	}
	return user, nil
}

// MaskToken はURLのtokenクエリパラメータを伏せ字にする。ログ出力用。
func MaskToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable]"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
