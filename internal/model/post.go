package model

import "time"

// Post はフィードに投稿されたポストを表す。
// Liked, Repostedは閲覧ユーザーごとの状態で、保存時には使用しない。
type Post struct {
	ID          string
	AuthorID    string
	Author      string // 投稿者の表示名
	Username    string
	Content     string // 投稿されたMarkdown原文
	ContentHTML string // レンダリング・サニタイズ済みHTML
	Likes       int
	Comments    int
	Reposts     int
	Liked       bool
	Reposted    bool
	CreatedAt   time.Time
}

// ReactionKind はポストへのリアクション種別を表す。
type ReactionKind string

const (
	// ReactionLike はいいね。
	ReactionLike ReactionKind = "like"
	// ReactionRepost はリポスト。
	ReactionRepost ReactionKind = "repost"
)

// Valid は定義済みのリアクション種別かどうかを返す。
func (k ReactionKind) Valid() bool {
	return k == ReactionLike || k == ReactionRepost
}
