package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/post"
)

// PostServiceInterface はポストハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, author *model.User, content string) (*model.Post, error)
	Get(ctx context.Context, id, viewerID string) (*model.Post, error)
	List(ctx context.Context, viewerID, authorID, cursor string, limit int) (*post.ListResult, error)
	Delete(ctx context.Context, id string, actor *model.User) error
	ToggleLike(ctx context.Context, id, userID string) (*model.Post, error)
	ToggleRepost(ctx context.Context, id, userID string) (*model.Post, error)
}

var _ PostServiceInterface = (*post.Service)(nil)

// PostHandler はフィードのポスト関連のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

type createPostRequest struct {
	Content string `json:"content" validate:"required"`
}

type postListResponse struct {
	Posts      []postResponse `json:"posts"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// ListPosts はポストを新しい順に返す。
// GET /api/posts?cursor=xxx&limit=20
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), viewerID(r), "", r.URL.Query().Get("cursor"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, postListResponse{
		Posts:      toPostResponses(result.Posts),
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	})
}

// CreatePost はポストを投稿する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createPostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), user, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(p))
}

// GetPost はポストを1件返す。
// GET /api/posts/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), viewerID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// DeletePost はポストを削除する。投稿者または管理者のみ。
// DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), user); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleLike はいいねを切り替え、更新後のポストを返す。
// POST /api/posts/{id}/like
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.ToggleLike)
}

// ToggleRepost はリポストを切り替え、更新後のポストを返す。
// POST /api/posts/{id}/repost
func (h *PostHandler) ToggleRepost(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.ToggleRepost)
}

func (h *PostHandler) toggle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, userID string) (*model.Post, error)) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	p, err := fn(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// parseLimit はlimitクエリパラメータを解析する。未指定の場合は0を返す。
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		handleServiceError(w, model.NewInvalidRequestError("limit must be a non-negative integer"))
		return 0, false
	}
	return limit, true
}
