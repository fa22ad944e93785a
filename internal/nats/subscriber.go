package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"sudooom.im.messaging/internal/proto"
	"sudooom.im.messaging/internal/workerpool"
)

// UpstreamHandler 上行消息处理器接口
type UpstreamHandler interface {
	HandleSend(ctx context.Context, env *proto.UpstreamMessage)
	HandleMarkRead(ctx context.Context, env *proto.UpstreamMessage)
	HandleOnline(ctx context.Context, env *proto.UpstreamMessage)
	HandleOffline(ctx context.Context, env *proto.UpstreamMessage)
}

// MessageSubscriber 上行消息订阅器
// 使用按会话分片的 Worker Pool：同一会话的消息串行处理（保序），
// 不同会话完全并行
type MessageSubscriber struct {
	nc           *nats.Conn
	handler      UpstreamHandler
	pool         *workerpool.Pool
	logger       *slog.Logger
	subscription *nats.Subscription
}

// NewMessageSubscriber 创建上行消息订阅器
func NewMessageSubscriber(nc *nats.Conn, handler UpstreamHandler, pool *workerpool.Pool) *MessageSubscriber {
	return &MessageSubscriber{
		nc:      nc,
		handler: handler,
		pool:    pool,
		logger:  slog.Default(),
	}
}

// Start 启动订阅 - 使用队列组实现多节点负载均衡
func (s *MessageSubscriber) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(SubjectCoreUpstream, QueueGroupCore, func(msg *nats.Msg) {
		s.dispatch(ctx, msg.Data)
	})
	if err != nil {
		return err
	}

	s.subscription = sub
	s.logger.Info("NATS subscriber started", "subject", SubjectCoreUpstream)
	return nil
}

// dispatch 解析上行消息并按会话分片入队
func (s *MessageSubscriber) dispatch(ctx context.Context, data []byte) {
	var env proto.UpstreamMessage
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Error("Failed to unmarshal upstream message", "error", err)
		return
	}

	var key string
	var task workerpool.Task

	switch {
	case env.Send != nil:
		key = env.Send.ConversationID
		task = func() { s.handler.HandleSend(ctx, &env) }
	case env.MarkRead != nil:
		key = env.MarkRead.ConversationID
		task = func() { s.handler.HandleMarkRead(ctx, &env) }
	case env.Online != nil:
		key = strconv.FormatInt(env.UserID, 10)
		task = func() { s.handler.HandleOnline(ctx, &env) }
	case env.Offline != nil:
		key = strconv.FormatInt(env.UserID, 10)
		task = func() { s.handler.HandleOffline(ctx, &env) }
	default:
		return
	}

	if !s.pool.TrySubmit(key, task) {
		// 队列满，丢弃并告警；客户端可通过拉取恢复
		s.logger.Warn("Worker queue full, dropping upstream message", "userId", env.UserID)
	}
}

// Stop 停止订阅
func (s *MessageSubscriber) Stop() error {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}
	s.logger.Info("NATS subscriber stopped")
	return nil
}
