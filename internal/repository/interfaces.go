// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile は表示名・自己紹介・アバターURLを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// GetProfile はユーザーのプロフィールと集計値を取得する。
	// viewerIDが空でない場合は閲覧者のフォロー状態も含める。見つからない場合はnilを返す。
	GetProfile(ctx context.Context, username, viewerID string) (*model.Profile, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、posts、user_preferences等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを追加する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// MagicLinkRepository はマジックリンクの永続化インターフェース。
type MagicLinkRepository interface {
	// Create はマジックリンクを保存する。
	Create(ctx context.Context, link *model.MagicLink) error

	// Consume は未使用かつ有効期限内のリンクを使用済みにして返す。
	// 該当するリンクがない場合はnilを返す。同じリンクは1回しか返さない。
	Consume(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLink, error)
}

// PreferencesRepository はユーザーごとのUI設定の永続化インターフェース。
type PreferencesRepository interface {
	// FindByUserID はユーザーのUI設定を取得する。未保存の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Preferences, error)

	// Upsert はUI設定を冪等に保存する。
	Upsert(ctx context.Context, userID string, prefs model.Preferences) error
}

// PostRepository はポストとリアクションの永続化インターフェース。
type PostRepository interface {
	// Create はポストを作成する。
	Create(ctx context.Context, post *model.Post) error

	// FindByID は指定IDのポストを閲覧者の状態付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id, viewerID string) (*model.Post, error)

	// List はポストをcreated_at降順で取得する。
	// authorIDが空でない場合はその投稿者のみに絞り込む。
	// cursorがゼロ値の場合は先頭から取得する。
	List(ctx context.Context, viewerID, authorID string, cursor time.Time, limit int) ([]*model.Post, error)

	// Delete は指定IDのポストを削除する。リアクションはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ToggleReaction はリアクションの有無を反転させる。
	// 反転後にリアクションが存在する場合はtrueを返す。
	ToggleReaction(ctx context.Context, postID, userID string, kind model.ReactionKind) (bool, error)
}

// FollowRepository はフォロー関係の永続化インターフェース。
type FollowRepository interface {
	// Follow はフォロー関係を冪等に作成する。
	Follow(ctx context.Context, followerID, followeeID string) error
	// Unfollow はフォロー関係を削除する。存在しない場合もエラーにしない。
	Unfollow(ctx context.Context, followerID, followeeID string) error
}

// CommunityRepository はコミュニティの永続化インターフェース。
type CommunityRepository interface {
	// List は全コミュニティを名前順に閲覧者の参加状態付きで取得する。
	List(ctx context.Context, viewerID string) ([]*model.Community, error)
	// FindByID は指定IDのコミュニティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id, viewerID string) (*model.Community, error)
	// FindByName は名前（大文字小文字を区別しない）でコミュニティを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Community, error)
	// Create はコミュニティを作成し、作成者をメンバーに加える。
	Create(ctx context.Context, community *model.Community) error
	// AddMember はメンバーを冪等に追加する。
	AddMember(ctx context.Context, communityID, userID string) error
	// RemoveMember はメンバーを削除する。存在しない場合もエラーにしない。
	RemoveMember(ctx context.Context, communityID, userID string) error
}

// ConversationRepository はダイレクトメッセージの永続化インターフェース。
type ConversationRepository interface {
	// FindOrCreate は2ユーザー間の会話を取得し、存在しない場合は作成する。
	FindOrCreate(ctx context.Context, userID, peerID string) (*model.Conversation, error)
	// FindByID は指定IDの会話を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// ListByUserID はユーザーが参加する会話を更新日時の降順で取得する。
	// Peerには相手ユーザーを設定する。
	ListByUserID(ctx context.Context, userID string) ([]*model.Conversation, error)
	// AddMessage はメッセージを保存し、会話の更新日時を進める。
	AddMessage(ctx context.Context, message *model.Message) error
	// ListMessages は会話のメッセージを古い順に最大limit件取得する。
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
