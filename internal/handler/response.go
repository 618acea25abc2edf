package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/hitoshi/interviewagent/internal/middleware"
	"github.com/hitoshi/interviewagent/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限（1MiB）。
const maxRequestBodyBytes = 1 << 20

// writeJSON は値をJSONとして書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
// ボディが上限を超える場合や不正なJSONの場合はVALIDATION_FAILEDのAPIErrorを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("リクエストボディのJSONが不正です")
	}
	return nil
}

// validationError はozzo-validationのエラーをAPIErrorに変換する。
// ルール自体の実行に失敗した場合は内部エラーとして扱う。
func validationError(err error) error {
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("validation rule failed: %w", internal.InternalError())
	}
	return model.NewValidationError(err.Error())
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeEmailAlreadyInUse:
		return http.StatusConflict
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeInterviewNotFound:
		return http.StatusNotFound
	case model.ErrCodeTopicGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// unauthorized は未認証レスポンスを書き込む。
func unauthorized(w http.ResponseWriter) {
	middleware.WriteUnauthorized(w)
}
