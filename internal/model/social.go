package model

import "time"

// Community は学習コミュニティを表す。
type Community struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	MemberCount int
	Joined      bool // 閲覧者が参加済みか
	CreatedAt   time.Time
}

// Conversation は2ユーザー間のダイレクトメッセージのスレッドを表す。
type Conversation struct {
	ID          string
	UserAID     string
	UserBID     string
	Peer        User // 閲覧者から見た相手
	LastMessage string
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

// HasParticipant は指定ユーザーが会話の参加者かどうかを返す。
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Message はダイレクトメッセージ1件を表す。
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
}
