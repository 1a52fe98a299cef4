package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jeanikt/uniconnect/internal/model"
)

// sessionColumns はsessionsテーブルから読み出す列。scanSessionと順序を揃える。
const sessionColumns = `id, user_id, expires_at, created_at`

// PostgresSessionRepo はsessionsテーブルに対するSessionRepository実装。
// セッションIDはCookieとJWTのsidクレームの両方から参照される。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var s model.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create はセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	const q = `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, q, session.ID, session.UserID, session.ExpiresAt, session.CreatedAt); err != nil {
		return wrapConflict(err, "failed to create session")
	}
	return nil
}

// FindByID は有効期限内のセッションを返す。存在しないか期限切れの場合はnil, nil。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND expires_at > now()`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return s, nil
}

// DeleteByID はログアウト時にセッションを1件削除する。存在しなくてもエラーにしない。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.delete(ctx, `DELETE FROM sessions WHERE id = $1`, id, "failed to delete session")
}

// DeleteByUserID は退会時にユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.delete(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID, "failed to delete user sessions")
}

func (r *PostgresSessionRepo) delete(ctx context.Context, q, arg, msg string) error {
	if _, err := r.db.ExecContext(ctx, q, arg); err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
