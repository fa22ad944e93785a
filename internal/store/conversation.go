package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/model"
)

const conversationColumns = `
	id, participant_lo, participant_hi, item_ref, sequence_counter,
	unread_lo, unread_hi,
	last_sender_id, last_content, last_created_at, last_sequence,
	created_at, updated_at
`

// GetOrCreateConversation 按去重键（参与者对 + itemRef）查找或创建会话
// 创建是去重键上的条件插入（ON CONFLICT DO NOTHING），并发调用只会产生一个会话；
// 冲突时重新读取并返回胜出的会话
func (s *Store) GetOrCreateConversation(ctx context.Context, a, b int64, itemRef string) (*model.Conversation, error) {
	lo, hi := orderPair(a, b)

	insert := `
		INSERT INTO conversations (id, participant_lo, participant_hi, item_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_lo, participant_hi, item_ref) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insert, uuid.NewString(), lo, hi, itemRef); err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_lo = $1 AND participant_hi = $2 AND item_ref = $3
	`
	row := s.pool.QueryRow(ctx, query, lo, hi, itemRef)
	return scanConversation(row)
}

// GetConversation 按 id 获取会话
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	return scanConversation(row)
}

// ListConversations 获取用户的会话列表（按更新时间倒序）
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_lo = $1 OR participant_hi = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}
	defer rows.Close()

	conversations := make([]*model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	return conversations, nil
}

// scanConversation 从行扫描会话，将 lo/hi 列还原为参与者数组和未读映射
func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		conv       model.Conversation
		lo, hi     int64
		unreadLo   int64
		unreadHi   int64
		lastSender *int64
		lastText   *string
		lastAt     *time.Time
		last       model.LastMessage
	)

	err := row.Scan(
		&conv.ID, &lo, &hi, &conv.ItemRef, &conv.SequenceCounter,
		&unreadLo, &unreadHi,
		&lastSender, &lastText, &lastAt, &last.Sequence,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	conv.Participants = [2]int64{lo, hi}
	conv.Unread = map[int64]int64{lo: unreadLo, hi: unreadHi}

	if lastSender != nil && last.Sequence > 0 {
		last.SenderID = *lastSender
		if lastText != nil {
			last.Content = *lastText
		}
		if lastAt != nil {
			last.CreatedAt = *lastAt
		}
		conv.LastMessage = &last
	}

	return &conv, nil
}
