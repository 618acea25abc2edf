package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ProviderIdentity は外部IdPが検証済みとして返したユーザー属性。
type ProviderIdentity struct {
	Email       string
	DisplayName string
}

// Validate はIdPから受け取った属性を境界で検証する。
func (p ProviderIdentity) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.DisplayName, validation.Length(0, 200)),
	)
}

// normalized は前後の空白を除去したコピーを返す。
func (p ProviderIdentity) normalized() ProviderIdentity {
	return ProviderIdentity{
		Email:       strings.TrimSpace(p.Email),
		DisplayName: strings.TrimSpace(p.DisplayName),
	}
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はstateを含むOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証済みのユーザー属性を取得する。
	ExchangeCode(ctx context.Context, code string) (*ProviderIdentity, error)
}
