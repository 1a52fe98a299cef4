// Package preferences はテーマと言語のUI設定を保持する。
// 設定は変更のたびにStoreへ保存する。
package preferences

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeanikt/uniconnect/internal/model"
)

// Store はUI設定の保存先。
type Store interface {
	// Load は保存済みの設定を読み込む。未保存の場合は既定値を返す。
	Load(ctx context.Context) (model.Preferences, error)
	// Save は設定を保存する。
	Save(ctx context.Context, prefs model.Preferences) error
}

// State はUI設定の現在値。変更はすべてStoreに即時保存する。
type State struct {
	mu    sync.Mutex
	store Store
	prefs model.Preferences
}

// Load はStoreから設定を読み込んでStateを生成する。
// 不正な保存値は既定値に置き換える。
func Load(ctx context.Context, store Store) (*State, error) {
	prefs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return &State{store: store, prefs: prefs.Normalize()}, nil
}

// Snapshot は現在の設定を返す。
func (s *State) Snapshot() model.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Theme は現在のテーマを返す。
func (s *State) Theme() model.Theme {
	return s.Snapshot().Theme
}

// Language は現在の言語を返す。
func (s *State) Language() model.Language {
	return s.Snapshot().Language
}

// ToggleTheme はlightとdarkを切り替えて保存する。
func (s *State) ToggleTheme(ctx context.Context) (model.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	if next.Theme == model.ThemeDark {
		next.Theme = model.ThemeLight
	} else {
		next.Theme = model.ThemeDark
	}
	if err := s.save(ctx, next); err != nil {
		return s.prefs.Theme, err
	}
	return next.Theme, nil
}

// SetLanguage は言語を変更して保存する。
func (s *State) SetLanguage(ctx context.Context, lang model.Language) error {
	if !lang.Valid() {
		return model.NewInvalidPreferencesError(fmt.Sprintf("unsupported language %q", lang))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	next.Language = lang
	return s.save(ctx, next)
}

// Update は指定された項目のみを変更して保存する。空の項目は変更しない。
func (s *State) Update(ctx context.Context, theme model.Theme, lang model.Language) (model.Preferences, error) {
	if theme != "" && !theme.Valid() {
		return model.Preferences{}, model.NewInvalidPreferencesError(fmt.Sprintf("unsupported theme %q", theme))
	}
	if lang != "" && !lang.Valid() {
		return model.Preferences{}, model.NewInvalidPreferencesError(fmt.Sprintf("unsupported language %q", lang))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	if theme != "" {
		next.Theme = theme
	}
	if lang != "" {
		next.Language = lang
	}
	if err := s.save(ctx, next); err != nil {
		return s.prefs, err
	}
	return next, nil
}

// save は保存に成功した場合のみ現在値を更新する。呼び出し側でロックを保持すること。
func (s *State) save(ctx context.Context, next model.Preferences) error {
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	s.prefs = next
	return nil
}
