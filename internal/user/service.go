// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// プロフィール項目の最大文字数。
const (
	maxNameLength = 100
	maxBioLength  = 280
)

// ProfileUpdate はプロフィール更新の入力。nilの項目は変更しない。
type ProfileUpdate struct {
	Name      *string
	Bio       *string
	AvatarURL *string
}

// Service はユーザー管理のサービス層。
// プロフィール、フォロー、退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	followRepo  repository.FollowRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	followRepo repository.FollowRepository,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		followRepo:  followRepo,
	}
}

// GetProfile はユーザー名でプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, username, viewerID string) (*model.Profile, error) {
	profile, err := s.userRepo.GetProfile(ctx, username, viewerID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}
	return profile, nil
}

// UpdateProfile は表示名・自己紹介・アバターURLを更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if utf8.RuneCountInString(name) > maxNameLength {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
		}
		user.Name = name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("bio must be at most %d characters", maxBioLength))
		}
		user.Bio = bio
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if avatar != "" && !strings.HasPrefix(avatar, "https://") && !strings.HasPrefix(avatar, "http://") {
			return nil, model.NewInvalidRequestError("avatar_url must be an http or https URL")
		}
		user.AvatarURL = avatar
	}
	user.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// Follow は指定ユーザーをフォローする。既にフォロー済みの場合も成功する。
func (s *Service) Follow(ctx context.Context, followerID, username string) error {
	target, err := s.followTarget(ctx, followerID, username)
	if err != nil {
		return err
	}
	if err := s.followRepo.Follow(ctx, followerID, target.ID); err != nil {
		return fmt.Errorf("フォローに失敗しました: %w", err)
	}
	return nil
}

// Unfollow は指定ユーザーのフォローを解除する。
func (s *Service) Unfollow(ctx context.Context, followerID, username string) error {
	target, err := s.followTarget(ctx, followerID, username)
	if err != nil {
		return err
	}
	if err := s.followRepo.Unfollow(ctx, followerID, target.ID); err != nil {
		return fmt.Errorf("フォロー解除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) followTarget(ctx context.Context, followerID, username string) (*model.User, error) {
	target, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}
	if target.ID == followerID {
		return nil, model.NewSelfFollowError()
	}
	return target, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: identities, posts, reactions, follows, memberships, messages, user_preferences）
// 作成したコミュニティはowner_idをNULLにして残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
