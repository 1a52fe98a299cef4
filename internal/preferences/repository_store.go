package preferences

import (
	"context"
	"fmt"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// RepositoryStore はuser_preferencesテーブルにユーザーごとの設定を保存するStore実装。
type RepositoryStore struct {
	repo   repository.PreferencesRepository
	userID string
}

// NewRepositoryStore は指定ユーザーのRepositoryStoreを生成する。
func NewRepositoryStore(repo repository.PreferencesRepository, userID string) *RepositoryStore {
	return &RepositoryStore{repo: repo, userID: userID}
}

// Load はユーザーの設定を読み込む。未保存の場合は既定値を返す。
func (s *RepositoryStore) Load(ctx context.Context) (model.Preferences, error) {
	prefs, err := s.repo.FindByUserID(ctx, s.userID)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("failed to find preferences: %w", err)
	}
	if prefs == nil {
		return model.DefaultPreferences(), nil
	}
	return *prefs, nil
}

// Save はユーザーの設定を保存する。
func (s *RepositoryStore) Save(ctx context.Context, prefs model.Preferences) error {
	if err := s.repo.Upsert(ctx, s.userID, prefs); err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*RepositoryStore)(nil)
