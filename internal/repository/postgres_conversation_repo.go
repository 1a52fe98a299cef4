package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeanikt/uniconnect/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用したダイレクトメッセージリポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// orderedPair は会話の参加者を(user_a_id < user_b_id)の順に並べる。
func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// FindOrCreate は2ユーザー間の会話を取得し、存在しない場合は作成する。
func (r *PostgresConversationRepo) FindOrCreate(ctx context.Context, userID, peerID string) (*model.Conversation, error) {
	a, b := orderedPair(userID, peerID)
	now := time.Now().UTC()

	// 同時作成時はUNIQUE(user_a_id, user_b_id)で片方がDO NOTHINGになる
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_a_id, user_b_id, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_a_id, user_b_id) DO NOTHING`,
		uuid.New().String(), a, b, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	conv := &model.Conversation{}
	err = r.db.QueryRowContext(ctx,
		`SELECT id, user_a_id, user_b_id, updated_at, created_at
		 FROM conversations WHERE user_a_id = $1 AND user_b_id = $2`,
		a, b,
	).Scan(&conv.ID, &conv.UserAID, &conv.UserBID, &conv.UpdatedAt, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// FindByID は指定IDの会話を取得する。見つからない場合はnilを返す。
func (r *PostgresConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_a_id, user_b_id, updated_at, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&conv.ID, &conv.UserAID, &conv.UserBID, &conv.UpdatedAt, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListByUserID はユーザーが参加する会話を更新日時の降順で取得する。
func (r *PostgresConversationRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_a_id, c.user_b_id, c.updated_at, c.created_at,
		        u.id, u.username, u.name, u.avatar_url,
		        COALESCE((SELECT m.body FROM messages m WHERE m.conversation_id = c.id
		                  ORDER BY m.created_at DESC LIMIT 1), '')
		 FROM conversations c
		 JOIN users u ON u.id = CASE WHEN c.user_a_id = $1 THEN c.user_b_id ELSE c.user_a_id END
		 WHERE c.user_a_id = $1 OR c.user_b_id = $1
		 ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv := &model.Conversation{}
		if err := rows.Scan(
			&conv.ID, &conv.UserAID, &conv.UserBID, &conv.UpdatedAt, &conv.CreatedAt,
			&conv.Peer.ID, &conv.Peer.Username, &conv.Peer.Name, &conv.Peer.AvatarURL,
			&conv.LastMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return convs, nil
}

// AddMessage はメッセージを保存し、会話の更新日時を同一トランザクションで進める。
func (r *PostgresConversationRepo) AddMessage(ctx context.Context, message *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.ConversationID, message.SenderID, message.Body, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`,
		message.ConversationID, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListMessages は会話のメッセージを古い順に最大limit件取得する。
// limit件を超える場合は最新のlimit件を返す。
func (r *PostgresConversationRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, created_at FROM (
		   SELECT id, conversation_id, sender_id, body, created_at
		   FROM messages WHERE conversation_id = $1
		   ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// compile-time interface check
var _ ConversationRepository = (*PostgresConversationRepo)(nil)
