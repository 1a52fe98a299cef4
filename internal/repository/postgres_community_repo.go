package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresCommunityRepo はPostgreSQLを使用したコミュニティリポジトリ。
type PostgresCommunityRepo struct {
	db *sql.DB
}

// NewPostgresCommunityRepo はPostgresCommunityRepoを生成する。
func NewPostgresCommunityRepo(db *sql.DB) *PostgresCommunityRepo {
	return &PostgresCommunityRepo{db: db}
}

// communitySelect はメンバー数と閲覧者の参加状態付きのベースクエリ。$1は閲覧者ID。
const communitySelect = `
	SELECT c.id, c.name, c.description, c.owner_id, c.created_at,
	       (SELECT count(*) FROM community_members m WHERE m.community_id = c.id) AS member_count,
	       EXISTS (SELECT 1 FROM community_members m WHERE m.community_id = c.id AND m.user_id = $1) AS joined
	FROM communities c`

func scanCommunity(row rowScanner) (*model.Community, error) {
	c := &model.Community{}
	var ownerID sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &ownerID, &c.CreatedAt, &c.MemberCount, &c.Joined); err != nil {
		return nil, err
	}
	c.OwnerID = nullStringValue(ownerID)
	return c, nil
}

// List は全コミュニティを名前順に閲覧者の参加状態付きで取得する。
func (r *PostgresCommunityRepo) List(ctx context.Context, viewerID string) ([]*model.Community, error) {
	rows, err := r.db.QueryContext(ctx, communitySelect+` ORDER BY lower(c.name)`, nullString(viewerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	defer rows.Close()

	var communities []*model.Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan community row: %w", err)
		}
		communities = append(communities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate community rows: %w", err)
	}
	return communities, nil
}

// FindByID は指定IDのコミュニティを取得する。見つからない場合はnilを返す。
func (r *PostgresCommunityRepo) FindByID(ctx context.Context, id, viewerID string) (*model.Community, error) {
	c, err := scanCommunity(r.db.QueryRowContext(ctx, communitySelect+` WHERE c.id = $2`, nullString(viewerID), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	return c, nil
}

// FindByName は名前でコミュニティを取得する。見つからない場合はnilを返す。
func (r *PostgresCommunityRepo) FindByName(ctx context.Context, name string) (*model.Community, error) {
	c, err := scanCommunity(r.db.QueryRowContext(ctx,
		communitySelect+` WHERE lower(c.name) = lower($2)`, nil, name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	return c, nil
}

// Create はコミュニティを作成し、作成者をメンバーに加える。
func (r *PostgresCommunityRepo) Create(ctx context.Context, c *model.Community) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO communities (id, name, description, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Description, nullString(c.OwnerID), c.CreatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to create community")
	}

	if c.OwnerID != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO community_members (community_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			c.ID, c.OwnerID, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to add creator as member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddMember はメンバーを冪等に追加する。
func (r *PostgresCommunityRepo) AddMember(ctx context.Context, communityID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO community_members (community_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (community_id, user_id) DO NOTHING`,
		communityID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to join community: %w", err)
	}
	return nil
}

// RemoveMember はメンバーを削除する。
func (r *PostgresCommunityRepo) RemoveMember(ctx context.Context, communityID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM community_members WHERE community_id = $1 AND user_id = $2`,
		communityID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to leave community: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CommunityRepository = (*PostgresCommunityRepo)(nil)
