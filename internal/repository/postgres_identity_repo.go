package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresIdentityRepo はidentitiesテーブルに対するIdentityRepository実装。
// 1ユーザーはGitHub・credentials・emailのIDを複数持てる。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はプロバイダー上のIDに紐づくidentityを返す。
// 未登録の場合はnil, nil。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var ident model.Identity
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, created_at
		FROM identities
		WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&ident.ID, &ident.UserID, &ident.Provider, &ident.ProviderUserID, &ident.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find %s identity: %w", provider, err)
	}
	return &ident, nil
}

// Create はユーザーにidentityを紐づける。
// 同じプロバイダーIDが既に登録済みの場合はErrConflictを返す。
func (r *PostgresIdentityRepo) Create(ctx context.Context, ident *model.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ident.ID, ident.UserID, ident.Provider, ident.ProviderUserID, ident.CreatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to create "+ident.Provider+" identity")
	}
	return nil
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
