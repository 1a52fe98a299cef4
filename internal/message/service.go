// Package message は2ユーザー間のダイレクトメッセージを提供する。
package message

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// 本文とページサイズの制限。
const (
	MaxBodyLength      = 2000
	DefaultHistorySize = 50
	MaxHistorySize     = 200
)

// UserFinder はユーザー名によるユーザー検索のインターフェース。
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// Service はダイレクトメッセージのサービス層。
// 会話の参加者以外には会話の存在を明かさない。
type Service struct {
	conversations repository.ConversationRepository
	users         UserFinder
}

// NewService はServiceを生成する。
func NewService(conversations repository.ConversationRepository, users UserFinder) *Service {
	return &Service{conversations: conversations, users: users}
}

// List はユーザーの会話を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	convs, err := s.conversations.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}
	return convs, nil
}

// Start は指定ユーザーとの会話を取得し、存在しない場合は作成する。
func (s *Service) Start(ctx context.Context, userID, peerUsername string) (*model.Conversation, error) {
	peer, err := s.users.FindByUsername(ctx, strings.TrimSpace(peerUsername))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if peer == nil {
		return nil, model.NewUserNotFoundError()
	}
	if peer.ID == userID {
		return nil, model.NewInvalidRequestError("you cannot start a conversation with yourself")
	}

	conv, err := s.conversations.FindOrCreate(ctx, userID, peer.ID)
	if err != nil {
		return nil, fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	conv.Peer = *peer
	return conv, nil
}

// Messages は会話の直近のメッセージを古い順に返す。
func (s *Service) Messages(ctx context.Context, conversationID, userID string, limit int) ([]*model.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistorySize
	}
	if limit > MaxHistorySize {
		limit = MaxHistorySize
	}

	messages, err := s.conversations.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	return messages, nil
}

// Send は会話にメッセージを送信する。本文は前後の空白を除いて1〜2000文字。
func (s *Service) Send(ctx context.Context, conversationID, senderID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	switch n := utf8.RuneCountInString(body); {
	case n == 0:
		return nil, model.NewInvalidMessageError("body is empty")
	case n > MaxBodyLength:
		return nil, model.NewInvalidMessageError(fmt.Sprintf("body has %d characters, the limit is %d", n, MaxBodyLength))
	}

	if _, err := s.participantConversation(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	if err := s.conversations.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}
	return msg, nil
}

// participantConversation は参加者の場合のみ会話を返す。
func (s *Service) participantConversation(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	if conv == nil || !conv.HasParticipant(userID) {
		return nil, model.NewConversationNotFoundError(conversationID)
	}
	return conv, nil
}
