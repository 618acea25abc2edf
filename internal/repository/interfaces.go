// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/interviewagent/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約に違反したことを示す。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザー（認証情報）の永続化インターフェース。
type UserRepository interface {
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを新規作成する。
	// メールアドレスが既に存在する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// Save はメールアドレスをキーにユーザーをUPSERTし、永続化後のレコードを返す。
	// 既存レコードの場合は表示名のみ更新し、ID・CreatedAt・PasswordHashは保存済みの値が返る。
	Save(ctx context.Context, user *model.User) (*model.User, error)
}

// InterviewRepository は面接データの永続化インターフェース。
type InterviewRepository interface {
	// Create は面接を作成する。
	Create(ctx context.Context, interview *model.Interview) error

	// ListByUserID はユーザーの面接一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Interview, error)

	// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Interview, error)
}
