package auth

import (
	"github.com/jeanikt/uniconnect/internal/model"
)

// SignInPolicy は認証済みIDにサインインを許可するかを判断する。
// 許可されなかったIDにはセッションを発行しない。
type SignInPolicy interface {
	Allow(identity ResolvedIdentity) bool
}

// AllowListPolicy はプロバイダーごとの許可設定によるSignInPolicy実装。
type AllowListPolicy struct {
	GitHubLogins     []string // サインインを許可するGitHubログイン名（完全一致）
	AllowCredentials bool
	AllowEmail       bool
}

// Allow はIDのプロバイダーに応じて許可を判断する。未知のプロバイダーは拒否する。
func (p AllowListPolicy) Allow(identity ResolvedIdentity) bool {
	switch identity.Provider {
	case model.ProviderGitHub:
		for _, login := range p.GitHubLogins {
			if identity.Login != "" && identity.Login == login {
				return true
			}
		}
		return false
	case model.ProviderCredentials:
		return p.AllowCredentials
	case model.ProviderEmail:
		return p.AllowEmail
	default:
		return false
	}
}

// compile-time interface check
var _ SignInPolicy = AllowListPolicy{}
