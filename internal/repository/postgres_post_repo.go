package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用したポストリポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postSelect はポストを投稿者情報とリアクション集計付きで取得するベースクエリ。
// $1は閲覧者のユーザーID（未ログインの場合はNULL）。
const postSelect = `
	SELECT p.id, p.author_id, COALESCE(NULLIF(u.name, ''), u.username), u.username,
	       p.content, p.content_html, p.comments, p.created_at,
	       (SELECT count(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'like') AS likes,
	       (SELECT count(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'repost') AS reposts,
	       EXISTS (SELECT 1 FROM post_reactions r WHERE r.post_id = p.id AND r.user_id = $1 AND r.kind = 'like') AS liked,
	       EXISTS (SELECT 1 FROM post_reactions r WHERE r.post_id = p.id AND r.user_id = $1 AND r.kind = 'repost') AS reposted
	FROM posts p
	JOIN users u ON u.id = p.author_id`

func scanPost(row rowScanner) (*model.Post, error) {
	post := &model.Post{}
	err := row.Scan(
		&post.ID, &post.AuthorID, &post.Author, &post.Username,
		&post.Content, &post.ContentHTML, &post.Comments, &post.CreatedAt,
		&post.Likes, &post.Reposts, &post.Liked, &post.Reposted,
	)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Create はポストを作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content, content_html, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		post.ID, post.AuthorID, post.Content, post.ContentHTML, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// FindByID は指定IDのポストを閲覧者の状態付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id, viewerID string) (*model.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx,
		postSelect+` WHERE p.id = $2`,
		nullString(viewerID), id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// List はポストをcreated_at降順で取得する。
// authorIDが空でない場合はその投稿者のみに絞り込む。
// cursorがゼロ値の場合は先頭から取得する。
func (r *PostgresPostRepo) List(ctx context.Context, viewerID, authorID string, cursor time.Time, limit int) ([]*model.Post, error) {
	query := postSelect + ` WHERE true`
	args := []interface{}{nullString(viewerID)}
	argIndex := 2

	if authorID != "" {
		query += fmt.Sprintf(" AND p.author_id = $%d", argIndex)
		args = append(args, authorID)
		argIndex++
	}

	// カーソルベースページネーション
	if !cursor.IsZero() {
		query += fmt.Sprintf(" AND p.created_at < $%d", argIndex)
		args = append(args, cursor)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post rows: %w", err)
	}

	return posts, nil
}

// Delete は指定IDのポストを削除する。リアクションはCASCADE削除される。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ToggleReaction はリアクションの有無を同一トランザクション内で反転させる。
// 既存のリアクションを削除できた場合はfalse、新規に作成した場合はtrueを返す。
func (r *PostgresPostRepo) ToggleReaction(ctx context.Context, postID, userID string, kind model.ReactionKind) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM post_reactions WHERE post_id = $1 AND user_id = $2 AND kind = $3`,
		postID, userID, string(kind),
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete reaction: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	active := removed == 0
	if active {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO post_reactions (post_id, user_id, kind, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (post_id, user_id, kind) DO NOTHING`,
			postID, userID, string(kind), time.Now().UTC(),
		)
		if err != nil {
			return false, fmt.Errorf("failed to create reaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return active, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
