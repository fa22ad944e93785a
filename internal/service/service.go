package service

import (
	"context"

	"sudooom.im.messaging/internal/model"
	"sudooom.im.messaging/internal/proto"
)

// Store 服务层依赖的存储接口，由 store.Store 实现
type Store interface {
	GetOrCreateConversation(ctx context.Context, a, b int64, itemRef string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]*model.Conversation, error)
	AppendMessage(ctx context.Context, convID string, senderID int64, content string) (*model.Message, error)
	MarkRead(ctx context.Context, convID string, readerID int64) error
	ListMessagesAfter(ctx context.Context, convID string, afterSeq int64, limit int) ([]*model.Message, error)
}

// LocationStore 位置查询接口，由 location.Registry 实现
type LocationStore interface {
	GetUserLocations(ctx context.Context, userID int64) ([]model.UserLocation, error)
}

// Publisher 下行消息发布接口，由 nats.MessagePublisher 实现
type Publisher interface {
	PublishToGateway(nodeID string, msg *proto.DownstreamMessage) error
}
