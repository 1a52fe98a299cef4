package auth

import (
	"context"
	"errors"
)

// ErrProviderDisabled は設定されていない認証バックエンドが呼ばれたことを表す。
var ErrProviderDisabled = errors.New("auth provider is not configured")

// ResolvedIdentity は認証バックエンドが確認したIDを表す。
// サインインポリシーはこの値だけを見て許可を判断する。
type ResolvedIdentity struct {
	Provider       string // "github", "credentials", "email"
	ProviderUserID string
	Login          string // GitHubのログイン名
	Email          string
	Name           string
	AvatarURL      string
	UserID         string // バックエンドがローカルユーザーを特定済みの場合のみ設定
}

// OAuthBackend はOAuth認証バックエンドのインターフェース。
type OAuthBackend interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、IDを取得する。
	ExchangeCode(ctx context.Context, code string) (*ResolvedIdentity, error)
}

// CredentialBackend はメールアドレスとパスワードによる認証バックエンドのインターフェース。
type CredentialBackend interface {
	// Authorize は資格情報を検証する。一致しない場合はnilを返す。
	Authorize(ctx context.Context, email, password string) (*ResolvedIdentity, error)
}
