// Package post はフィードのポストとリアクションを扱う。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// ポスト本文とページサイズの制限。
const (
	MaxContentLength = 280
	DefaultPageSize  = 20
	MaxPageSize      = 100
)

// ContentRenderer はポスト本文をHTMLに変換する。
type ContentRenderer interface {
	Render(content string) (string, error)
}

// Recorder はポスト操作の記録先。
type Recorder interface {
	RecordPostCreated()
	RecordReaction(kind string, active bool)
}

// Service はポストの作成・取得・リアクションを提供する。
type Service struct {
	posts    repository.PostRepository
	renderer ContentRenderer
	recorder Recorder
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(posts repository.PostRepository, renderer ContentRenderer, recorder Recorder) *Service {
	return &Service{posts: posts, renderer: renderer, recorder: recorder}
}

// ListResult はListの戻り値。
type ListResult struct {
	Posts      []*model.Post
	NextCursor string
	HasMore    bool
}

// Create はポストを作成する。本文は前後の空白を除いて1〜280文字。
func (s *Service) Create(ctx context.Context, author *model.User, content string) (*model.Post, error) {
	content = strings.TrimSpace(content)
	switch n := utf8.RuneCountInString(content); {
	case n == 0:
		return nil, model.NewInvalidPostError("content is empty")
	case n > MaxContentLength:
		return nil, model.NewInvalidPostError(fmt.Sprintf("content has %d characters, the limit is %d", n, MaxContentLength))
	}

	rendered, err := s.renderer.Render(content)
	if err != nil {
		return nil, err
	}

	display := author.Name
	if display == "" {
		display = author.Username
	}

	post := &model.Post{
		ID:          uuid.New().String(),
		AuthorID:    author.ID,
		Author:      display,
		Username:    author.Username,
		Content:     content,
		ContentHTML: rendered,
		CreatedAt:   time.Now(),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordPostCreated()
	}
	slog.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("user_id", author.ID),
	)
	return post, nil
}

// Get は閲覧者の状態付きでポストを取得する。
func (s *Service) Get(ctx context.Context, id, viewerID string) (*model.Post, error) {
	post, err := s.posts.FindByID(ctx, id, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return post, nil
}

// List はポストを新しい順に返す。
// カーソルにはRFC3339Nano形式のcreated_atを指定する。limit+1件を取得してHasMoreを判定する。
func (s *Service) List(ctx context.Context, viewerID, authorID, cursorStr string, limit int) (*ListResult, error) {
	var cursor time.Time
	if cursorStr != "" {
		var err error
		cursor, err = time.Parse(time.RFC3339Nano, cursorStr)
		if err != nil {
			return nil, model.NewInvalidRequestError("invalid cursor: " + cursorStr)
		}
	}
	limit = clampLimit(limit)

	posts, err := s.posts.List(ctx, viewerID, authorID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	result := &ListResult{Posts: posts}
	if len(posts) > limit {
		result.Posts = posts[:limit]
		result.HasMore = true
		result.NextCursor = result.Posts[limit-1].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return result, nil
}

// Delete はポストを削除する。投稿者本人または管理者のみ削除できる。
func (s *Service) Delete(ctx context.Context, id string, actor *model.User) error {
	post, err := s.posts.FindByID(ctx, id, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(id)
	}
	if post.AuthorID != actor.ID && !actor.IsAdmin {
		return model.NewForbiddenError()
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ToggleLike はいいねを反転し、更新後のポストを返す。
func (s *Service) ToggleLike(ctx context.Context, id, userID string) (*model.Post, error) {
	return s.Toggle(ctx, id, userID, model.ReactionLike)
}

// ToggleRepost はリポストを反転し、更新後のポストを返す。
func (s *Service) ToggleRepost(ctx context.Context, id, userID string) (*model.Post, error) {
	return s.Toggle(ctx, id, userID, model.ReactionRepost)
}

// Toggle は指定種別のリアクションを反転し、更新後のポストを返す。
// 2回反転すると件数と状態は元に戻る。
func (s *Service) Toggle(ctx context.Context, id, userID string, kind model.ReactionKind) (*model.Post, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("unknown reaction %q", kind))
	}
	if _, err := s.Get(ctx, id, userID); err != nil {
		return nil, err
	}

	active, err := s.posts.ToggleReaction(ctx, id, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle %s: %w", kind, err)
	}
	if s.recorder != nil {
		s.recorder.RecordReaction(string(kind), active)
	}

	return s.Get(ctx, id, userID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
