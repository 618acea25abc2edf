// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// メールアドレスが一意キーで、トークンのsubjectにもなる。
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string // bcryptハッシュ。平文は保持しない
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthorityUser は全プリンシパルに付与される唯一の権限。
// ロールや権限階層は存在しない。
const AuthorityUser = "USER"

// Principal はリクエスト単位で確立される認証済みアイデンティティ。
// 永続化されず、リクエスト処理の終了とともに破棄される。
type Principal struct {
	Subject   string // ユーザーのメールアドレス
	UserID    string
	Authority string
}
