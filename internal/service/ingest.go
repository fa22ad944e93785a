package service

import (
	"context"
	"log/slog"
	"strings"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/metrics"
	"sudooom.im.messaging/internal/model"
)

// IngestService 消息接收管道
// 校验发送请求，持久化消息并推进冗余计数，然后交给分发器投递
type IngestService struct {
	store      Store
	dispatcher *DispatcherService
	maxContent int
	logger     *slog.Logger
}

// NewIngestService 创建消息接收管道
func NewIngestService(store Store, dispatcher *DispatcherService, maxContent int) *IngestService {
	if maxContent <= 0 {
		maxContent = 2000
	}
	return &IngestService{
		store:      store,
		dispatcher: dispatcher,
		maxContent: maxContent,
		logger:     slog.Default(),
	}
}

// Send 处理一次发送
// 持久化（含序号分配、未读自增、lastMessage 快照）在存储层单个事务内完成；
// 投递是尽力而为，失败只记录，不影响发送结果 —— 消息落盘即成功
func (s *IngestService) Send(ctx context.Context, convID string, senderID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyContent
	}
	if len(content) > s.maxContent {
		return nil, apperrors.ErrContentTooLong
	}

	// 参与者集合创建后不可变，这里的读取不构成竞态
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, apperrors.ErrNotAParticipant
	}

	msg, err := s.store.AppendMessage(ctx, convID, senderID, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesIngested.Inc()

	// 投递给所有参与者的在线连接（含发送者自己的连接，用于多端同步）
	if s.dispatcher != nil {
		s.dispatcher.Fanout(conv.Participants[:], msg)
	}

	return msg, nil
}

// ListMessages 按 sequence 升序获取消息，afterSeq 用于断线缺口恢复
func (s *IngestService) ListMessages(ctx context.Context, convID string, callerID, afterSeq int64, limit int) ([]*model.Message, error) {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, apperrors.ErrNotAParticipant
	}

	return s.store.ListMessagesAfter(ctx, convID, afterSeq, limit)
}
