package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/hitoshi/interviewagent/internal/interview"
	"github.com/hitoshi/interviewagent/internal/middleware"
	"github.com/hitoshi/interviewagent/internal/model"
)

// InterviewServiceInterface は面接ハンドラーが必要とするサービスインターフェース。
type InterviewServiceInterface interface {
	// Create は面接を作成し、生成されたトピックを含めて返す。
	Create(ctx context.Context, email string, in interview.CreateInput) (*interviewResponse, error)
	// ListByUser はユーザーの面接一覧を新しい順に返す。
	ListByUser(ctx context.Context, email string) ([]interviewResponse, error)
	// Get は指定IDの面接を返す。他のユーザーの面接は見つからない扱いになる。
	Get(ctx context.Context, email, interviewID string) (*interviewResponse, error)
}

// InterviewHandler は面接管理のHTTPハンドラー。
type InterviewHandler struct {
	service InterviewServiceInterface
}

// NewInterviewHandler はInterviewHandlerを生成する。
func NewInterviewHandler(service InterviewServiceInterface) *InterviewHandler {
	return &InterviewHandler{
		service: service,
	}
}

// interviewResponse は面接情報のAPIレスポンス。
type interviewResponse struct {
	ID             string       `json:"id"`
	JobPosition    string       `json:"jobPosition"`
	JobDescription string       `json:"jobDescription"`
	Duration       string       `json:"duration"`
	InterviewType  string       `json:"interviewType"`
	TopicsJSON     string       `json:"topicsJson"`
	CreatedAt      time.Time    `json:"createdAt"`
	User           userResponse `json:"user"`
}

// createInterviewRequest は面接作成リクエストのボディ。
type createInterviewRequest struct {
	JobPosition    string `json:"jobPosition"`
	JobDescription string `json:"jobDescription"`
	Duration       string `json:"duration"`
}

// Validate は面接作成リクエストを検証する。
func (r createInterviewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.JobPosition, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.JobDescription, validation.Length(0, 10000)),
		validation.Field(&r.Duration, validation.Required, validation.Length(1, 50)),
	)
}

// CreateInterview は面接を作成する。
// POST /api/interviews
func (h *InterviewHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	var req createInterviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		handleServiceError(w, validationError(err))
		return
	}

	created, err := h.service.Create(r.Context(), principal.Subject, interview.CreateInput{
		JobPosition:    req.JobPosition,
		JobDescription: req.JobDescription,
		Duration:       req.Duration,
	})
	if errors.Is(err, interview.ErrTopicGeneration) {
		handleServiceError(w, model.NewTopicGenerationFailedError())
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListInterviews はユーザーの面接一覧を取得する。
// GET /api/interviews
func (h *InterviewHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	list, err := h.service.ListByUser(r.Context(), principal.Subject)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// GetInterview は面接の詳細を取得する。
// GET /api/interviews/{id}
func (h *InterviewHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	iv, err := h.service.Get(r.Context(), principal.Subject, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, iv)
}
