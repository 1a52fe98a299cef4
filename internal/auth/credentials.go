package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeanikt/uniconnect/internal/model"
)

// StubCredentialBackend は開発用の資格情報バックエンド。
// どの資格情報も受け入れ、固定ID "1"・名前 "John" のIDを返す。
// AUTH_CREDENTIAL_STUB=true の場合のみ使用する。
type StubCredentialBackend struct{}

// NewStubCredentialBackend はStubCredentialBackendを生成し、警告ログを出力する。
func NewStubCredentialBackend() *StubCredentialBackend {
	slog.Warn("stub credential backend is enabled: any email and password will be accepted")
	return &StubCredentialBackend{}
}

// Authorize は資格情報を検証せずに固定のIDを返す。
func (b *StubCredentialBackend) Authorize(ctx context.Context, email, password string) (*ResolvedIdentity, error) {
	return &ResolvedIdentity{
		Provider:       model.ProviderCredentials,
		ProviderUserID: "1",
		Email:          strings.TrimSpace(email),
		Name:           "John",
	}, nil
}

// UserFinder はメールアドレスによるユーザー検索のインターフェース。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// PasswordCredentialBackend は保存済みのbcryptハッシュで資格情報を検証する。
type PasswordCredentialBackend struct {
	users  UserFinder
	hasher PasswordHasher
}

// NewPasswordCredentialBackend はPasswordCredentialBackendを生成する。
func NewPasswordCredentialBackend(users UserFinder, hasher PasswordHasher) *PasswordCredentialBackend {
	return &PasswordCredentialBackend{users: users, hasher: hasher}
}

// Authorize はメールアドレスとパスワードを検証する。
// ユーザーが存在しない場合とパスワード不一致の場合はどちらもnilを返す。
func (b *PasswordCredentialBackend) Authorize(ctx context.Context, email, password string) (*ResolvedIdentity, error) {
	user, err := b.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, nil
	}
	if !b.hasher.Compare(user.PasswordHash, password) {
		return nil, nil
	}

	return &ResolvedIdentity{
		Provider:       model.ProviderCredentials,
		ProviderUserID: strings.ToLower(user.Email),
		Email:          user.Email,
		Name:           user.Name,
		UserID:         user.ID,
	}, nil
}

// compile-time interface check
var (
	_ CredentialBackend = (*StubCredentialBackend)(nil)
	_ CredentialBackend = (*PasswordCredentialBackend)(nil)
)
