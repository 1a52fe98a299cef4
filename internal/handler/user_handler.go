package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/post"
	"github.com/jeanikt/uniconnect/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, username, viewerID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	Follow(ctx context.Context, followerID, username string) error
	Unfollow(ctx context.Context, followerID, username string) error
	// Withdraw はユーザーの退会処理を実行する。
	// セッションを削除した後、ユーザーと関連データをCASCADE削除する。
	Withdraw(ctx context.Context, userID string) error
}

var _ UserServiceInterface = (*user.Service)(nil)

// PostListerInterface はプロフィールに表示するポストの取得に使う。
type PostListerInterface interface {
	List(ctx context.Context, viewerID, authorID, cursor string, limit int) (*post.ListResult, error)
}

// UserHandler はプロフィールとフォローのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	posts   PostListerInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, posts PostListerInterface) *UserHandler {
	return &UserHandler{
		service: service,
		posts:   posts,
	}
}

type profileResponse struct {
	ID             string         `json:"id"`
	Username       string         `json:"username"`
	Name           string         `json:"name"`
	Bio            string         `json:"bio"`
	AvatarURL      string         `json:"avatar_url"`
	PostCount      int            `json:"post_count"`
	FollowerCount  int            `json:"follower_count"`
	FollowingCount int            `json:"following_count"`
	Following      bool           `json:"following"`
	CreatedAt      time.Time      `json:"created_at"`
	Posts          []postResponse `json:"posts"`
	NextCursor     string         `json:"next_cursor,omitempty"`
}

type updateProfileRequest struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
}

// GetProfile はユーザーのプロフィールと最近のポストを返す。
// GET /api/users/{username}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewer := viewerID(r)

	profile, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "username"), viewer)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	posts, err := h.posts.List(r.Context(), viewer, profile.ID, r.URL.Query().Get("cursor"), 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:             profile.ID,
		Username:       profile.Username,
		Name:           profile.Name,
		Bio:            profile.Bio,
		AvatarURL:      profile.AvatarURL,
		PostCount:      profile.PostCount,
		FollowerCount:  profile.FollowerCount,
		FollowingCount: profile.FollowingCount,
		Following:      profile.Following,
		CreatedAt:      profile.CreatedAt,
		Posts:          toPostResponses(posts.Posts),
		NextCursor:     posts.NextCursor,
	})
}

// UpdateProfile は自分のプロフィールを更新する。省略された項目は変更しない。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), current.ID, user.ProfileUpdate{
		Name:      req.Name,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// Follow はユーザーをフォローする。
// POST /api/users/{username}/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Follow(r.Context(), current.ID, chi.URLParam(r, "username")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unfollow はフォローを解除する。
// DELETE /api/users/{username}/follow
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Unfollow(r.Context(), current.ID, chi.URLParam(r, "username")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), current.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
