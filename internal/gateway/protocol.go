package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/quic-go/webtransport-go"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/location"
	imnats "sudooom.im.messaging/internal/nats"
	"sudooom.im.messaging/internal/proto"
)

const (
	HeaderSize = 6 // 4 bytes length + 2 bytes msg type

	// 消息类型
	MsgTypeHeartbeat uint16 = 0
	MsgTypeAuth      uint16 = 1
	MsgTypeAuthAck   uint16 = 2
	MsgTypeSend      uint16 = 10
	MsgTypeSendAck   uint16 = 11
	MsgTypePush      uint16 = 12
	MsgTypeMarkRead  uint16 = 13
	MsgTypeError     uint16 = 20
)

// 连接拒绝错误码（区分认证失败原因）
const (
	CloseCodeCredentialMissing = 4001
	CloseCodeCredentialInvalid = 4002
	CloseCodeAccountInactive   = 4003
)

// AuthRequest 认证帧载荷
type AuthRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// AuthAck 认证成功应答
type AuthAck struct {
	Code   int   `json:"code"`
	UserID int64 `json:"userId"`
}

// ClientSend 客户端发送帧载荷
type ClientSend struct {
	ClientMsgID    string `json:"clientMsgId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// ClientMarkRead 客户端已读帧载荷
type ClientMarkRead struct {
	ConversationID string `json:"conversationId"`
}

// Handler 通道协议处理器
type Handler struct {
	connMgr   *Manager
	publisher *imnats.MessagePublisher
	resolver  identity.Resolver
	registry  *location.Registry
	nodeID    string
	logger    *slog.Logger
}

func NewHandler(connMgr *Manager, publisher *imnats.MessagePublisher, resolver identity.Resolver, registry *location.Registry, nodeID string, logger *slog.Logger) *Handler {
	return &Handler{
		connMgr:   connMgr,
		publisher: publisher,
		resolver:  resolver,
		registry:  registry,
		nodeID:    nodeID,
		logger:    logger,
	}
}

// HandleFirstStream 处理首包认证
// 首个 stream 的第一帧必须是认证请求，失败返回区分原因的拒绝码
func (h *Handler) HandleFirstStream(ctx context.Context, conn *Connection, stream *webtransport.Stream) (int, error) {
	msgType, body, err := readFrame(stream)
	if err != nil {
		return CloseCodeCredentialMissing, err
	}
	if msgType != MsgTypeAuth {
		return CloseCodeCredentialMissing, apperrors.ErrCredentialMissing
	}

	var authReq AuthRequest
	if err := json.Unmarshal(body, &authReq); err != nil {
		return CloseCodeCredentialInvalid, apperrors.ErrCredentialInvalid.Wrap(err)
	}
	if authReq.Token == "" {
		return CloseCodeCredentialMissing, apperrors.ErrCredentialMissing
	}

	principal, err := h.resolver.ResolveCredential(ctx, authReq.Token)
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrCredentialMissing):
			return CloseCodeCredentialMissing, err
		case apperrors.Is(err, apperrors.ErrAccountInactive):
			return CloseCodeAccountInactive, err
		default:
			return CloseCodeCredentialInvalid, err
		}
	}

	// 绑定邮箱并注册位置
	conn.Bind(principal.UserID, authReq.Platform)
	h.connMgr.Bind(conn.ID(), principal.UserID)
	if err := h.registry.Register(ctx, principal.UserID, conn.ID(), authReq.Platform); err != nil {
		h.logger.Error("Failed to register user location", "error", err)
	}

	h.sendUserOnline(conn)

	ack, _ := json.Marshal(AuthAck{Code: 0, UserID: principal.UserID})
	h.sendResponse(stream, MsgTypeAuthAck, ack)

	return 0, nil
}

// HandleStream 处理认证后的帧循环
func (h *Handler) HandleStream(ctx context.Context, conn *Connection, stream *webtransport.Stream) {
	defer stream.Close()

	for {
		msgType, body, err := readFrame(stream)
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("Failed to read frame", "error", err)
			}
			return
		}

		h.dispatch(ctx, conn, stream, msgType, body)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Connection, stream *webtransport.Stream, msgType uint16, body []byte) {
	switch msgType {
	case MsgTypeHeartbeat:
		h.handleHeartbeat(ctx, conn, stream)
	case MsgTypeSend:
		h.handleSend(conn, body)
	case MsgTypeMarkRead:
		h.handleMarkRead(conn, body)
	default:
		h.logger.Debug("Unknown frame type", "msgType", msgType, "conn_id", conn.ID())
	}
}

func (h *Handler) handleHeartbeat(ctx context.Context, conn *Connection, stream *webtransport.Stream) {
	// 刷新用户位置 TTL
	if conn.UserID() > 0 {
		if err := h.registry.Refresh(ctx, conn.UserID()); err != nil {
			h.logger.Warn("Failed to refresh location", "error", err)
		}
	}

	h.sendResponse(stream, MsgTypeHeartbeat, nil)
}

func (h *Handler) handleSend(conn *Connection, body []byte) {
	var req ClientSend
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("Failed to unmarshal send frame", "error", err)
		return
	}

	env := &proto.UpstreamMessage{
		NodeID:   h.nodeID,
		ConnID:   conn.ID(),
		UserID:   conn.UserID(),
		Platform: conn.Platform(),
		Send: &proto.SendRequest{
			ClientMsgID:    req.ClientMsgID,
			ConversationID: req.ConversationID,
			Content:        req.Content,
		},
	}
	if err := h.publisher.PublishUpstream(env); err != nil {
		h.logger.Error("Failed to publish upstream send", "error", err)
	}
}

func (h *Handler) handleMarkRead(conn *Connection, body []byte) {
	var req ClientMarkRead
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("Failed to unmarshal markRead frame", "error", err)
		return
	}

	env := &proto.UpstreamMessage{
		NodeID: h.nodeID,
		ConnID: conn.ID(),
		UserID: conn.UserID(),
		MarkRead: &proto.MarkRead{
			ConversationID: req.ConversationID,
		},
	}
	if err := h.publisher.PublishUpstream(env); err != nil {
		h.logger.Error("Failed to publish upstream markRead", "error", err)
	}
}

func (h *Handler) sendUserOnline(conn *Connection) {
	env := &proto.UpstreamMessage{
		NodeID:   h.nodeID,
		ConnID:   conn.ID(),
		UserID:   conn.UserID(),
		Platform: conn.Platform(),
		Online:   &proto.UserOnline{Platform: conn.Platform()},
	}
	if err := h.publisher.PublishUpstream(env); err != nil {
		h.logger.Warn("Failed to publish user online", "error", err)
	}
}

// SendUserOffline 发送用户下线通知
func (h *Handler) SendUserOffline(conn *Connection) {
	if conn.UserID() == 0 {
		return
	}

	env := &proto.UpstreamMessage{
		NodeID:  h.nodeID,
		ConnID:  conn.ID(),
		UserID:  conn.UserID(),
		Offline: &proto.UserOffline{},
	}
	if err := h.publisher.PublishUpstream(env); err != nil {
		h.logger.Warn("Failed to publish user offline", "error", err)
	}
}

// HandleDownstream 处理 Core 下行消息并投递到邮箱
func (h *Handler) HandleDownstream(data []byte) {
	var msg proto.DownstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Error("Failed to unmarshal downstream message", "error", err)
		return
	}

	conns := h.targetConnections(&msg)

	switch {
	case msg.Payload.Push != nil:
		push := msg.Payload.Push
		body, _ := json.Marshal(push)
		for _, conn := range conns {
			// 每通道水位守卫：同一会话只按非递减 sequence 投递
			if !conn.AdmitSequence(push.ConversationID, push.Sequence) {
				continue
			}
			if err := conn.Send(BuildFrame(MsgTypePush, body)); err != nil {
				h.logger.Debug("Push dropped, connection closed", "conn_id", conn.ID())
			}
		}
	case msg.Payload.SendAck != nil:
		body, _ := json.Marshal(msg.Payload.SendAck)
		for _, conn := range conns {
			if err := conn.Send(BuildFrame(MsgTypeSendAck, body)); err != nil {
				h.logger.Debug("Ack dropped, connection closed", "conn_id", conn.ID())
			}
		}
	case msg.Payload.Error != nil:
		body, _ := json.Marshal(msg.Payload.Error)
		for _, conn := range conns {
			if err := conn.Send(BuildFrame(MsgTypeError, body)); err != nil {
				h.logger.Debug("Error notice dropped, connection closed", "conn_id", conn.ID())
			}
		}
	}
}

// targetConnections 解析下行消息的目标通道
// 指定 ConnId 时只投递到该通道，否则投递到用户邮箱下的全部通道
func (h *Handler) targetConnections(msg *proto.DownstreamMessage) []*Connection {
	if msg.ConnID > 0 {
		conn := h.connMgr.Get(msg.ConnID)
		if conn == nil || conn.UserID() != msg.UserID {
			return nil
		}
		return []*Connection{conn}
	}
	return h.connMgr.GetByUserID(msg.UserID)
}

// ============== 帧编解码 ==============

// BuildFrame 构建消息帧: 4 字节长度 + 2 字节类型 + 载荷
func BuildFrame(msgType uint16, body []byte) []byte {
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	binary.BigEndian.PutUint16(frame[4:6], msgType)
	copy(frame[HeaderSize:], body)
	return frame
}

// readFrame 读取一帧
func readFrame(r io.Reader) (uint16, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[:4])
	msgType := binary.BigEndian.Uint16(header[4:6])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	return msgType, body, nil
}

func (h *Handler) sendResponse(stream *webtransport.Stream, msgType uint16, body []byte) {
	if _, err := stream.Write(BuildFrame(msgType, body)); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}
