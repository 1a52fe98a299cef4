package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresMagicLinkRepo はPostgreSQLを使用したマジックリンクリポジトリ。
type PostgresMagicLinkRepo struct {
	db *sql.DB
}

// NewPostgresMagicLinkRepo はPostgresMagicLinkRepoを生成する。
func NewPostgresMagicLinkRepo(db *sql.DB) *PostgresMagicLinkRepo {
	return &PostgresMagicLinkRepo{db: db}
}

// Create はマジックリンクを保存する。
func (r *PostgresMagicLinkRepo) Create(ctx context.Context, link *model.MagicLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (id, email, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		link.ID, link.Email, link.TokenHash, link.ExpiresAt, link.CreatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to create magic link")
	}
	return nil
}

// Consume は未使用かつ有効期限内のリンクを使用済みにして返す。
// UPDATE ... RETURNINGの単一文で行うため、同時に確認しても成功するのは1件のみ。
func (r *PostgresMagicLinkRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLink, error) {
	link := &model.MagicLink{}
	var consumedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`UPDATE magic_links SET consumed_at = $2
		 WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
		 RETURNING id, email, token_hash, expires_at, consumed_at, created_at`,
		tokenHash, now,
	).Scan(&link.ID, &link.Email, &link.TokenHash, &link.ExpiresAt, &consumedAt, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume magic link: %w", err)
	}
	if consumedAt.Valid {
		link.ConsumedAt = &consumedAt.Time
	}

	return link, nil
}

// compile-time interface check
var _ MagicLinkRepository = (*PostgresMagicLinkRepo)(nil)
