// Package community は学習コミュニティの一覧・作成・参加を提供する。
package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
)

const (
	minNameLength        = 3
	maxNameLength        = 80
	maxDescriptionLength = 500
)

// Service はコミュニティのサービス層。
type Service struct {
	repo repository.CommunityRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.CommunityRepository) *Service {
	return &Service{repo: repo}
}

// List は全コミュニティを閲覧者の参加状態付きで返す。
func (s *Service) List(ctx context.Context, viewerID string) ([]*model.Community, error) {
	communities, err := s.repo.List(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("コミュニティ一覧の取得に失敗しました: %w", err)
	}
	return communities, nil
}

// Create はコミュニティを作成する。作成者は自動的にメンバーになる。
func (s *Service) Create(ctx context.Context, owner *model.User, name, description string) (*model.Community, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("name must be between %d and %d characters", minNameLength, maxNameLength))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}

	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("コミュニティの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewCommunityExistsError(existing.Name)
	}

	c := &model.Community{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		OwnerID:     owner.ID,
		MemberCount: 1,
		Joined:      true,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewCommunityExistsError(name)
		}
		return nil, err
	}
	return c, nil
}

// Join はコミュニティに参加する。参加済みの場合も成功する。
func (s *Service) Join(ctx context.Context, id, userID string) (*model.Community, error) {
	if _, err := s.get(ctx, id, userID); err != nil {
		return nil, err
	}
	if err := s.repo.AddMember(ctx, id, userID); err != nil {
		return nil, fmt.Errorf("コミュニティへの参加に失敗しました: %w", err)
	}
	return s.get(ctx, id, userID)
}

// Leave はコミュニティから退出する。
func (s *Service) Leave(ctx context.Context, id, userID string) (*model.Community, error) {
	if _, err := s.get(ctx, id, userID); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveMember(ctx, id, userID); err != nil {
		return nil, fmt.Errorf("コミュニティからの退出に失敗しました: %w", err)
	}
	return s.get(ctx, id, userID)
}

func (s *Service) get(ctx context.Context, id, viewerID string) (*model.Community, error) {
	c, err := s.repo.FindByID(ctx, id, viewerID)
	if err != nil {
		return nil, fmt.Errorf("コミュニティの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCommunityNotFoundError(id)
	}
	return c, nil
}
