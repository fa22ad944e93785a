package service

import (
	"context"
	"log/slog"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/model"
)

// DirectoryService 会话目录
// 按去重键（参与者对 + itemRef）查找或创建会话
type DirectoryService struct {
	store    Store
	resolver identity.Resolver
	logger   *slog.Logger
}

// NewDirectoryService 创建会话目录
func NewDirectoryService(store Store, resolver identity.Resolver) *DirectoryService {
	return &DirectoryService{
		store:    store,
		resolver: resolver,
		logger:   slog.Default(),
	}
}

// GetOrCreate 查找或创建会话
// 已存在时原样返回；不存在时创建，两个参与者的未读计数从 0 开始。
// itemRef 是不透明的外部引用，只参与去重，不做存在性校验
func (s *DirectoryService) GetOrCreate(ctx context.Context, callerID, peerID int64, itemRef string) (*model.Conversation, error) {
	if callerID == peerID {
		return nil, apperrors.ErrSelfConversation
	}

	if _, err := s.resolver.LookupUser(ctx, peerID); err != nil {
		return nil, err
	}

	conv, err := s.store.GetOrCreateConversation(ctx, callerID, peerID, itemRef)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Conversation resolved",
		"conversationId", conv.ID,
		"callerId", callerID,
		"peerId", peerID)
	return conv, nil
}

// List 获取用户的会话列表（按最近更新倒序）
func (s *DirectoryService) List(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}
