package handler

import (
	"context"

	"github.com/hitoshi/interviewagent/internal/interview"
)

// InterviewServiceAdapter は interview.Service を InterviewServiceInterface に適合させるアダプタ。
type InterviewServiceAdapter struct {
	svc *interview.Service
}

// NewInterviewServiceAdapter はInterviewServiceAdapterを生成する。
func NewInterviewServiceAdapter(svc *interview.Service) *InterviewServiceAdapter {
	return &InterviewServiceAdapter{svc: svc}
}

// Create は面接を作成しhandlerレスポンス型で返す。
func (a *InterviewServiceAdapter) Create(ctx context.Context, email string, in interview.CreateInput) (*interviewResponse, error) {
	info, err := a.svc.Create(ctx, email, in)
	if err != nil {
		return nil, err
	}
	resp := toInterviewResponse(*info)
	return &resp, nil
}

// ListByUser はユーザーの面接一覧をhandlerレスポンス型で返す。
func (a *InterviewServiceAdapter) ListByUser(ctx context.Context, email string) ([]interviewResponse, error) {
	infos, err := a.svc.ListByUser(ctx, email)
	if err != nil {
		return nil, err
	}

	results := make([]interviewResponse, len(infos))
	for i, info := range infos {
		results[i] = toInterviewResponse(info)
	}
	return results, nil
}

// Get は面接の詳細をhandlerレスポンス型で返す。
func (a *InterviewServiceAdapter) Get(ctx context.Context, email, interviewID string) (*interviewResponse, error) {
	info, err := a.svc.Get(ctx, email, interviewID)
	if err != nil {
		return nil, err
	}
	resp := toInterviewResponse(*info)
	return &resp, nil
}

// toInterviewResponse はドメインのInterviewInfoをhandlerのレスポンス型に変換する。
func toInterviewResponse(info interview.InterviewInfo) interviewResponse {
	return interviewResponse{
		ID:             info.ID,
		JobPosition:    info.JobPosition,
		JobDescription: info.JobDescription,
		Duration:       info.Duration,
		InterviewType:  string(info.InterviewType),
		TopicsJSON:     info.TopicsJSON,
		CreatedAt:      info.CreatedAt,
		User: userResponse{
			ID:       info.User.ID,
			FullName: info.User.FullName,
			Email:    info.User.Email,
		},
	}
}

// compile-time interface check
var _ InterviewServiceInterface = (*InterviewServiceAdapter)(nil)
