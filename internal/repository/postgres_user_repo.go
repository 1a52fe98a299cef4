package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, username, name, bio, avatar_url, is_admin, password_hash, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var passwordHash sql.NullString
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.Name, &user.Bio, &user.AvatarURL,
		&user.IsAdmin, &passwordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = nullStringValue(passwordHash)
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, email)
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `lower(username) = lower($1)`, username)
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, username, name, bio, avatar_url, is_admin, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.Username, user.Name, user.Bio, user.AvatarURL,
		user.IsAdmin, nullString(user.PasswordHash), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to insert user")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to insert identity")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateProfile は表示名・自己紹介・アバターURLを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, bio = $3, avatar_url = $4, updated_at = $5 WHERE id = $1`,
		user.ID, user.Name, user.Bio, user.AvatarURL, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// GetProfile はユーザーのプロフィールと集計値を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) GetProfile(ctx context.Context, username, viewerID string) (*model.Profile, error) {
	user, err := r.FindByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, err
	}

	profile := &model.Profile{User: *user}
	err = r.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT count(*) FROM posts WHERE author_id = $1),
		   (SELECT count(*) FROM follows WHERE followee_id = $1),
		   (SELECT count(*) FROM follows WHERE follower_id = $1),
		   EXISTS (SELECT 1 FROM follows WHERE follower_id = $2 AND followee_id = $1)`,
		user.ID, nullString(viewerID),
	).Scan(&profile.PostCount, &profile.FollowerCount, &profile.FollowingCount, &profile.Following)
	if err != nil {
		return nil, fmt.Errorf("failed to count profile stats: %w", err)
	}

	return profile, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、posts、user_preferences等はCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
