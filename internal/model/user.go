// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Username     string
	Name         string
	Bio          string
	AvatarURL    string
	IsAdmin      bool
	PasswordHash string // パスワード認証を使わないユーザーは空
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// IDプロバイダー名。
const (
	ProviderGitHub      = "github"
	ProviderCredentials = "credentials"
	ProviderEmail       = "email"
)

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MagicLink はメールで送信するワンタイムログインリンクを表す。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type MagicLink struct {
	ID         string
	Email      string
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Profile はプロフィールページ向けにユーザーと集計値をまとめたもの。
type Profile struct {
	User
	PostCount      int
	FollowerCount  int
	FollowingCount int
	Following      bool // 閲覧者がこのユーザーをフォローしているか
}
