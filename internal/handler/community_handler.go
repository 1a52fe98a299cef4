package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeanikt/uniconnect/internal/community"
	"github.com/jeanikt/uniconnect/internal/model"
)

// CommunityServiceInterface はコミュニティハンドラーが必要とするサービスインターフェース。
type CommunityServiceInterface interface {
	List(ctx context.Context, viewerID string) ([]*model.Community, error)
	Create(ctx context.Context, owner *model.User, name, description string) (*model.Community, error)
	Join(ctx context.Context, id, userID string) (*model.Community, error)
	Leave(ctx context.Context, id, userID string) (*model.Community, error)
}

var _ CommunityServiceInterface = (*community.Service)(nil)

// CommunityHandler はコミュニティのHTTPハンドラー。
type CommunityHandler struct {
	service CommunityServiceInterface
}

// NewCommunityHandler はCommunityHandlerを生成する。
func NewCommunityHandler(service CommunityServiceInterface) *CommunityHandler {
	return &CommunityHandler{service: service}
}

type communityResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	MemberCount int       `json:"member_count"`
	Joined      bool      `json:"joined"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCommunityResponse(c *model.Community) communityResponse {
	return communityResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		OwnerID:     c.OwnerID,
		MemberCount: c.MemberCount,
		Joined:      c.Joined,
		CreatedAt:   c.CreatedAt,
	}
}

type createCommunityRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// ListCommunities はコミュニティ一覧を返す。
// GET /api/communities
func (h *CommunityHandler) ListCommunities(w http.ResponseWriter, r *http.Request) {
	communities, err := h.service.List(r.Context(), viewerID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]communityResponse, len(communities))
	for i, c := range communities {
		resp[i] = toCommunityResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCommunity はコミュニティを作成する。作成者は自動的にメンバーになる。
// POST /api/communities
func (h *CommunityHandler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	owner, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createCommunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), owner, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommunityResponse(c))
}

// Join はコミュニティに参加する。
// POST /api/communities/{id}/members
func (h *CommunityHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.service.Join)
}

// Leave はコミュニティから退出する。
// DELETE /api/communities/{id}/members
func (h *CommunityHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.service.Leave)
}

func (h *CommunityHandler) membership(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, userID string) (*model.Community, error)) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	c, err := fn(r.Context(), chi.URLParam(r, "id"), current.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommunityResponse(c))
}
