package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresPreferencesRepo はPostgreSQLを使用したUI設定リポジトリ。
type PostgresPreferencesRepo struct {
	db *sql.DB
}

// NewPostgresPreferencesRepo はPostgresPreferencesRepoを生成する。
func NewPostgresPreferencesRepo(db *sql.DB) *PostgresPreferencesRepo {
	return &PostgresPreferencesRepo{db: db}
}

// FindByUserID はユーザーのUI設定を取得する。未保存の場合はnilを返す。
func (r *PostgresPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	var theme, language string
	err := r.db.QueryRowContext(ctx,
		`SELECT theme, language FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&theme, &language)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find preferences: %w", err)
	}

	prefs := model.Preferences{Theme: model.Theme(theme), Language: model.Language(language)}
	return &prefs, nil
}

// Upsert はUI設定を冪等に保存する。
func (r *PostgresPreferencesRepo) Upsert(ctx context.Context, userID string, prefs model.Preferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, theme, language, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET theme = EXCLUDED.theme, language = EXCLUDED.language, updated_at = EXCLUDED.updated_at`,
		userID, string(prefs.Theme), string(prefs.Language), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
