package service

import (
	"context"
	"log/slog"

	apperrors "sudooom.im.messaging/internal/errors"
)

// ReconcileService 已读对账
// 将会话中读者未读的对方消息全部标记已读并清零未读计数，幂等
type ReconcileService struct {
	store  Store
	logger *slog.Logger
}

// NewReconcileService 创建已读对账服务
func NewReconcileService(store Store) *ReconcileService {
	return &ReconcileService{
		store:  store,
		logger: slog.Default(),
	}
}

// MarkRead 标记会话已读
// 只改本地状态，不向其他用户投递
func (s *ReconcileService) MarkRead(ctx context.Context, convID string, readerID int64) error {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(readerID) {
		return apperrors.ErrNotAParticipant
	}

	return s.store.MarkRead(ctx, convID, readerID)
}
