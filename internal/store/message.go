package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/model"
)

// AppendMessage 在单个事务内完成消息持久化的全部效果：
//  1. 原子自增会话的 sequence_counter 并取得新值（行锁使同一会话的写入串行）
//  2. 插入消息，read_by 初始化为 {sender}
//  3. 原子自增对端未读计数；仅当新 sequence 大于 last_sequence 时
//     更新 lastMessage 快照（防止延迟重试的写入覆盖更新的快照）
//
// 事务要么全部生效要么全部不生效，消息不会在缺少计数/快照效果的状态下可见
func (s *Store) AppendMessage(ctx context.Context, convID string, senderID int64, content string) (*model.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}
	defer tx.Rollback(ctx)

	// 1. 自增序号并锁定会话行
	var seq, lo, hi int64
	err = tx.QueryRow(ctx, `
		UPDATE conversations
		SET sequence_counter = sequence_counter + 1
		WHERE id = $1
		RETURNING sequence_counter, participant_lo, participant_hi
	`, convID).Scan(&seq, &lo, &hi)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	// 2. 插入消息
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Sequence:       seq,
		ReadBy:         []int64{senderID},
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, sequence, read_by)
		VALUES ($1, $2, $3, $4, $5, ARRAY[$3]::bigint[])
		RETURNING created_at
	`, msg.ID, convID, senderID, content, seq).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	// 3. 未读计数 + lastMessage 快照（带序号守卫）
	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET unread_lo      = unread_lo + CASE WHEN participant_lo <> $2 THEN 1 ELSE 0 END,
		    unread_hi      = unread_hi + CASE WHEN participant_hi <> $2 THEN 1 ELSE 0 END,
		    last_sender_id = CASE WHEN last_sequence < $3 THEN $2 ELSE last_sender_id END,
		    last_content   = CASE WHEN last_sequence < $3 THEN $4 ELSE last_content END,
		    last_created_at = CASE WHEN last_sequence < $3 THEN $5 ELSE last_created_at END,
		    last_sequence  = GREATEST(last_sequence, $3),
		    updated_at     = now()
		WHERE id = $1
	`, convID, senderID, seq, content, msg.CreatedAt)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	return msg, nil
}

// MarkRead 将会话中所有 reader 未读的对方消息标记为已读并清零未读计数
// read_by 更新是集合并集（带守卫的 append），重复调用或与并发发送交错
// 都不会重复计数，幂等
func (s *Store) MarkRead(ctx context.Context, convID string, readerID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}
	defer tx.Rollback(ctx)

	// 先更新会话行：行锁与 AppendMessage 串行，
	// 之后的消息集合更新看到的是锁授予前已提交的全部消息。
	// 无条件置零，而非递减：与并发发送交错时也安全
	tag, err := tx.Exec(ctx, `
		UPDATE conversations
		SET unread_lo = CASE WHEN participant_lo = $2 THEN 0 ELSE unread_lo END,
		    unread_hi = CASE WHEN participant_hi = $2 THEN 0 ELSE unread_hi END
		WHERE id = $1
	`, convID, readerID)
	if err != nil {
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConversationNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE messages
		SET read_by = read_by || $2::bigint
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND NOT (read_by @> ARRAY[$2]::bigint[])
	`, convID, readerID)
	if err != nil {
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}

	return nil
}

// ListMessagesAfter 按 sequence 升序获取 afterSeq 之后的消息
// afterSeq 为 0 时返回全部；用于展示和断线后的缺口恢复
func (s *Store) ListMessagesAfter(ctx context.Context, convID string, afterSeq int64, limit int) ([]*model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, sequence, read_by, created_at
		FROM messages
		WHERE conversation_id = $1 AND sequence > $2
		ORDER BY sequence ASC
		LIMIT $3
	`
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, query, convID, afterSeq, limit)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0)
	for rows.Next() {
		var msg model.Message
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msg.Sequence, &msg.ReadBy, &msg.CreatedAt)
		if err != nil {
			return nil, apperrors.ErrStoreUnavailable.Wrap(err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	return messages, nil
}

// CountUnreadDerived 从 read_by 成员关系推导用户的未读数
// 冗余计数器必须始终与该推导值一致（测试用）
func (s *Store) CountUnreadDerived(ctx context.Context, convID string, userID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM messages
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND NOT (read_by @> ARRAY[$2]::bigint[])
	`, convID, userID).Scan(&count)
	if err != nil {
		return 0, apperrors.ErrStoreUnavailable.Wrap(err)
	}
	return count, nil
}
