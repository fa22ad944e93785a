package handler

import (
	"context"
	"log/slog"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/proto"
	"sudooom.im.messaging/internal/service"
)

// UpstreamHandler 上行消息处理器
// 桥接 NATS 订阅与核心服务：发送、已读、上下线
type UpstreamHandler struct {
	ingest     *service.IngestService
	reconcile  *service.ReconcileService
	dispatcher *service.DispatcherService
	logger     *slog.Logger
}

// NewUpstreamHandler 创建上行消息处理器
func NewUpstreamHandler(
	ingest *service.IngestService,
	reconcile *service.ReconcileService,
	dispatcher *service.DispatcherService,
) *UpstreamHandler {
	return &UpstreamHandler{
		ingest:     ingest,
		reconcile:  reconcile,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
}

// HandleSend 处理发送请求
func (h *UpstreamHandler) HandleSend(ctx context.Context, env *proto.UpstreamMessage) {
	req := env.Send

	// 1. 持久化并触发投递（投递在 ingest 内部完成）
	msg, err := h.ingest.Send(ctx, req.ConversationID, env.UserID, req.Content)
	if err != nil {
		h.logger.Warn("Send rejected",
			"userId", env.UserID,
			"conversationId", req.ConversationID,
			"error", err)
		h.dispatcher.SendError(env.NodeID, env.ConnID, env.UserID, req.ClientMsgID,
			apperrors.GetCode(err), apperrors.GetMessage(err))
		return
	}

	// 2. 直接回 ACK 给发送连接（携带已分配的 sequence）
	h.dispatcher.SendAck(env.NodeID, env.ConnID, env.UserID, req.ClientMsgID, msg)
}

// HandleMarkRead 处理会话已读
func (h *UpstreamHandler) HandleMarkRead(ctx context.Context, env *proto.UpstreamMessage) {
	if err := h.reconcile.MarkRead(ctx, env.MarkRead.ConversationID, env.UserID); err != nil {
		h.logger.Warn("MarkRead rejected",
			"userId", env.UserID,
			"conversationId", env.MarkRead.ConversationID,
			"error", err)
		h.dispatcher.SendError(env.NodeID, env.ConnID, env.UserID, "",
			apperrors.GetCode(err), apperrors.GetMessage(err))
	}
}

// HandleOnline 处理用户上线（位置由网关管理，这里只记录日志）
func (h *UpstreamHandler) HandleOnline(ctx context.Context, env *proto.UpstreamMessage) {
	h.logger.Info("User online",
		"userId", env.UserID,
		"nodeId", env.NodeID,
		"platform", env.Platform)
}

// HandleOffline 处理用户下线
func (h *UpstreamHandler) HandleOffline(ctx context.Context, env *proto.UpstreamMessage) {
	h.logger.Info("User offline",
		"userId", env.UserID,
		"nodeId", env.NodeID)
}
