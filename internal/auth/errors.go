package auth

import "errors"

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っていることを示す。
	// どちらが誤っているかは区別しない。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPrincipalNotFound は有効なトークンのsubjectに対応するユーザーが存在しないことを示す。
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrProviderAccountPersistence は外部IdPログイン中のユーザー保存に失敗したことを示す。
	ErrProviderAccountPersistence = errors.New("failed to persist provider account")

	// ErrEmailAlreadyInUse は登録済みのメールアドレスで新規登録しようとしたことを示す。
	ErrEmailAlreadyInUse = errors.New("email already in use")

	// ErrInvalidProviderIdentity はIdPから受け取った属性が不正であることを示す。
	ErrInvalidProviderIdentity = errors.New("invalid provider identity")

	// ErrReservedPassword はIdP専用アカウントのマーカー値をパスワードに使おうとしたことを示す。
	ErrReservedPassword = errors.New("password value is reserved")

	// ErrPasswordMismatch はパスワードがハッシュと一致しないことを示す。
	ErrPasswordMismatch = errors.New("password does not match")
)
