package service

import (
	"context"
	"log/slog"

	"sudooom.im.messaging/internal/metrics"
	"sudooom.im.messaging/internal/model"
	"sudooom.im.messaging/internal/proto"
)

// DispatcherService 消息分发服务
// 把已持久化的消息推送到参与者当前在线的每个连接：
// 每个连接至多一次，离线连接不排队，客户端通过按 sequence 拉取补缺口
type DispatcherService struct {
	locations LocationStore
	publisher Publisher
	logger    *slog.Logger
}

// NewDispatcherService 创建消息分发服务
func NewDispatcherService(locations LocationStore, publisher Publisher) *DispatcherService {
	return &DispatcherService{
		locations: locations,
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// Fanout 投递消息给所有参与者的在线连接
// 发送者自己的连接也会收到（多端同步；原始连接收到推送无害，客户端以 sequence 去重）。
// 同一会话的调用方（按会话分片的 worker）串行执行本方法，推送顺序即序号顺序
func (d *DispatcherService) Fanout(participants []int64, msg *model.Message) {
	for _, userID := range participants {
		if err := d.pushToUser(context.Background(), userID, msg); err != nil {
			d.logger.Warn("Fanout failed, recoverable by pull",
				"userId", userID,
				"conversationId", msg.ConversationID,
				"error", err)
		}
	}
}

// pushToUser 向单个用户的所有在线连接投递
func (d *DispatcherService) pushToUser(ctx context.Context, userID int64, msg *model.Message) error {
	locs, err := d.locations.GetUserLocations(ctx, userID)
	if err != nil {
		metrics.FanoutDropped.WithLabelValues("location_lookup").Inc()
		return err
	}

	if len(locs) == 0 {
		d.logger.Debug("User is offline, skipping push", "userId", userID)
		return nil
	}

	for _, loc := range locs {
		downstream := &proto.DownstreamMessage{
			UserID: userID,
			ConnID: loc.ConnID,
			Payload: proto.DownstreamPayload{
				Push: msg,
			},
		}
		if err := d.publisher.PublishToGateway(loc.NodeID, downstream); err != nil {
			metrics.FanoutDropped.WithLabelValues("publish").Inc()
			d.logger.Warn("Failed to publish push",
				"userId", userID,
				"nodeId", loc.NodeID,
				"connId", loc.ConnID,
				"error", err)
			// 继续推送其他连接，不中断
			continue
		}
		metrics.FanoutPushed.Inc()
	}

	return nil
}

// SendAck 把发送确认投递回消息来源的连接（直达，不查位置）
func (d *DispatcherService) SendAck(nodeID string, connID, userID int64, clientMsgID string, msg *model.Message) {
	ack := &proto.DownstreamMessage{
		UserID: userID,
		ConnID: connID,
		Payload: proto.DownstreamPayload{
			SendAck: &proto.SendAck{
				ClientMsgID: clientMsgID,
				Message:     msg,
			},
		},
	}
	if err := d.publisher.PublishToGateway(nodeID, ack); err != nil {
		d.logger.Warn("Failed to publish send ack",
			"userId", userID,
			"nodeId", nodeID,
			"error", err)
	}
}

// SendError 把操作失败通知投递回触发操作的连接
func (d *DispatcherService) SendError(nodeID string, connID, userID int64, clientMsgID string, code int, message string) {
	notice := &proto.DownstreamMessage{
		UserID: userID,
		ConnID: connID,
		Payload: proto.DownstreamPayload{
			Error: &proto.ErrorNotice{
				ClientMsgID: clientMsgID,
				Code:        code,
				Message:     message,
			},
		},
	}
	if err := d.publisher.PublishToGateway(nodeID, notice); err != nil {
		d.logger.Warn("Failed to publish error notice",
			"userId", userID,
			"nodeId", nodeID,
			"error", err)
	}
}
