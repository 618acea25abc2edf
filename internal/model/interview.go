package model

import "time"

// InterviewType は面接の種別を表す。
type InterviewType string

const (
	// InterviewTypeMock は5分間の模擬面接。
	InterviewTypeMock InterviewType = "MOCK"
	// InterviewTypeFull は通常の面接。
	InterviewTypeFull InterviewType = "FULL"
)

// Interview はユーザーが作成した面接を表す。
type Interview struct {
	ID             string
	UserID         string
	JobPosition    string
	JobDescription string
	Duration       string // "5 min", "15 min" など
	InterviewType  InterviewType
	TopicsJSON     string // AIが生成したトピックのJSON配列
	CreatedAt      time.Time
}
