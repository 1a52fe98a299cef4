package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeanikt/uniconnect/internal/message"
	"github.com/jeanikt/uniconnect/internal/model"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Conversation, error)
	Start(ctx context.Context, userID, peerUsername string) (*model.Conversation, error)
	Messages(ctx context.Context, conversationID, userID string, limit int) ([]*model.Message, error)
	Send(ctx context.Context, conversationID, senderID, body string) (*model.Message, error)
}

var _ MessageServiceInterface = (*message.Service)(nil)

// MessageHandler はダイレクトメッセージのHTTPハンドラー。
// 全エンドポイントで会話の参加者のみを対象にする。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

type conversationResponse struct {
	ID          string             `json:"id"`
	Peer        publicUserResponse `json:"peer"`
	LastMessage string             `json:"last_message"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toConversationResponse(c *model.Conversation) conversationResponse {
	return conversationResponse{
		ID:          c.ID,
		Peer:        toPublicUserResponse(&c.Peer),
		LastMessage: c.LastMessage,
		UpdatedAt:   c.UpdatedAt,
	}
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

type startConversationRequest struct {
	Username string `json:"username" validate:"required"`
}

type sendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// ListConversations は参加中の会話を更新の新しい順に返す。
// GET /api/conversations
func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	conversations, err := h.service.List(r.Context(), current.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]conversationResponse, len(conversations))
	for i, c := range conversations {
		resp[i] = toConversationResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartConversation は相手との会話を開始する。既存の会話があればそれを返す。
// POST /api/conversations
func (h *MessageHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req startConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.service.Start(r.Context(), current.ID, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

// ListMessages は会話のメッセージを古い順に返す。
// GET /api/conversations/{id}/messages?limit=50
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	messages, err := h.service.Messages(r.Context(), chi.URLParam(r, "id"), current.ID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]messageResponse, len(messages))
	for i, m := range messages {
		resp[i] = toMessageResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessage は会話にメッセージを送信する。
// POST /api/conversations/{id}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Send(r.Context(), chi.URLParam(r, "id"), current.ID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}
