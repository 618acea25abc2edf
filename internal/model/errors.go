// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, interview, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeEmailAlreadyInUse     = "EMAIL_ALREADY_IN_USE"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeInterviewNotFound     = "INTERVIEW_NOT_FOUND"
	ErrCodeTopicGenerationFailed = "TOPIC_GENERATION_FAILED"
	ErrCodeProviderLoginFailed   = "PROVIDER_LOGIN_FAILED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの存在有無を推測させないため、メッセージは常に同一。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewEmailAlreadyInUseError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyInUse,
		Message:  "Email already in use.",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User profile data not found.",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInterviewNotFoundError は面接が見つからない場合のエラーを生成する。
func NewInterviewNotFoundError(interviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeInterviewNotFound,
		Message:  fmt.Sprintf("指定された面接が見つかりません: %s", interviewID),
		Category: "interview",
		Action:   "面接IDを確認してください。",
	}
}

// NewTopicGenerationFailedError はAIによるトピック生成失敗エラーを生成する。
func NewTopicGenerationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeTopicGenerationFailed,
		Message:  "Failed to generate interview topics via AI.",
		Category: "interview",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProviderLoginFailedError は外部IdPログイン失敗エラーを生成する。
func NewProviderLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderLoginFailed,
		Message:  "authentication failed",
		Category: "auth",
		Action:   "もう一度ログインをお試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
