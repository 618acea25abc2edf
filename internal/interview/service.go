// Package interview は面接の作成・取得のドメインロジックを提供する。
package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewagent/internal/model"
	"github.com/hitoshi/interviewagent/internal/repository"
	"github.com/hitoshi/interviewagent/internal/security"
	"github.com/hitoshi/interviewagent/internal/topics"
)

// mockDuration はMOCK面接として扱う所要時間。大文字小文字は区別しない。
const mockDuration = "5 min"

// ErrTopicGeneration はAIによるトピック生成に失敗したことを示す。
// この場合、面接は保存されない。
var ErrTopicGeneration = errors.New("failed to generate interview topics")

// CreateInput は面接作成の入力。
type CreateInput struct {
	JobPosition    string
	JobDescription string
	Duration       string
}

// UserSummary はレスポンスに含める作成者情報。パスワードハッシュは含まない。
type UserSummary struct {
	ID       string
	FullName string
	Email    string
}

// InterviewInfo は面接と作成者情報を結合したドメインオブジェクト。
type InterviewInfo struct {
	ID             string
	JobPosition    string
	JobDescription string
	Duration       string
	InterviewType  model.InterviewType
	TopicsJSON     string
	CreatedAt      time.Time
	User           UserSummary
}

// Service は面接管理のサービス層。
type Service struct {
	interviews repository.InterviewRepository
	users      repository.UserRepository
	generator  topics.Generator
	sanitizer  security.TextSanitizer
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	interviews repository.InterviewRepository,
	users repository.UserRepository,
	generator topics.Generator,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		interviews: interviews,
		users:      users,
		generator:  generator,
		sanitizer:  sanitizer,
		now:        time.Now,
	}
}

// DetermineType は所要時間から面接種別を決める。
// "5 min"（大文字小文字を区別しない）はMOCK、それ以外はFULL。
func DetermineType(duration string) model.InterviewType {
	if strings.EqualFold(strings.TrimSpace(duration), mockDuration) {
		return model.InterviewTypeMock
	}
	return model.InterviewTypeFull
}

// Create は面接を作成し、AIが生成したトピックとともに保存する。
// トピック生成に失敗した場合は何も保存せずErrTopicGenerationを返す。
func (s *Service) Create(ctx context.Context, email string, in CreateInput) (*InterviewInfo, error) {
	user, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}

	position := s.sanitizer.StripText(in.JobPosition)
	description := s.sanitizer.StripText(in.JobDescription)
	duration := strings.TrimSpace(in.Duration)
	if position == "" {
		return nil, model.NewValidationError("jobPosition")
	}

	generated, err := s.generator.GenerateTopics(ctx, position, description)
	if err != nil {
		slog.Error("トピック生成に失敗したため面接を保存しません",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrTopicGeneration, err)
	}

	topicsJSON, err := json.Marshal(generated)
	if err != nil {
		return nil, fmt.Errorf("トピックのエンコードに失敗しました: %w", err)
	}

	iv := &model.Interview{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		JobPosition:    position,
		JobDescription: description,
		Duration:       duration,
		InterviewType:  DetermineType(duration),
		TopicsJSON:     string(topicsJSON),
		CreatedAt:      s.now(),
	}
	if err := s.interviews.Create(ctx, iv); err != nil {
		return nil, fmt.Errorf("面接の保存に失敗しました: %w", err)
	}

	slog.Info("面接を作成しました",
		slog.String("interview_id", iv.ID),
		slog.String("user_id", user.ID),
		slog.String("interview_type", string(iv.InterviewType)),
	)
	return toInfo(iv, user), nil
}

// ListByUser はユーザーの面接一覧を新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, email string) ([]InterviewInfo, error) {
	user, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}

	rows, err := s.interviews.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}

	results := make([]InterviewInfo, len(rows))
	for i, row := range rows {
		results[i] = *toInfo(row, user)
	}
	return results, nil
}

// Get は指定IDの面接を返す。
// 存在しない場合と他のユーザーの面接である場合は同じNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, email, interviewID string) (*InterviewInfo, error) {
	user, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}

	// UUIDとして不正なIDはDBに問い合わせず見つからない扱いにする
	if _, err := uuid.Parse(interviewID); err != nil {
		return nil, model.NewInterviewNotFoundError(interviewID)
	}

	iv, err := s.interviews.FindByID(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("面接の取得に失敗しました: %w", err)
	}
	if iv == nil || iv.UserID != user.ID {
		return nil, model.NewInterviewNotFoundError(interviewID)
	}

	return toInfo(iv, user), nil
}

// findUser はプリンシパルのメールアドレスからユーザーを取得する。
func (s *Service) findUser(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func toInfo(iv *model.Interview, user *model.User) *InterviewInfo {
	return &InterviewInfo{
		ID:             iv.ID,
		JobPosition:    iv.JobPosition,
		JobDescription: iv.JobDescription,
		Duration:       iv.Duration,
		InterviewType:  iv.InterviewType,
		TopicsJSON:     iv.TopicsJSON,
		CreatedAt:      iv.CreatedAt,
		User: UserSummary{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
		},
	}
}
