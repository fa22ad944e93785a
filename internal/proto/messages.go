package proto

import "sudooom.im.messaging/internal/model"

// ============== 上行消息 (Gateway -> Core) ==============

// UpstreamMessage 上行消息封装
type UpstreamMessage struct {
	NodeID   string       `json:"NodeId"`
	ConnID   int64        `json:"ConnId"`
	UserID   int64        `json:"UserId"`
	Platform string       `json:"Platform,omitempty"`
	Send     *SendRequest `json:"Send,omitempty"`
	MarkRead *MarkRead    `json:"MarkRead,omitempty"`
	Online   *UserOnline  `json:"Online,omitempty"`
	Offline  *UserOffline `json:"Offline,omitempty"`
}

// SendRequest 发送消息请求
type SendRequest struct {
	ClientMsgID    string `json:"ClientMsgId"`
	ConversationID string `json:"ConversationId"`
	Content        string `json:"Content"`
}

// MarkRead 标记会话已读
type MarkRead struct {
	ConversationID string `json:"ConversationId"`
}

// UserOnline 用户上线事件
type UserOnline struct {
	DeviceID string `json:"DeviceId"`
	Platform string `json:"Platform"`
}

// UserOffline 用户下线事件
type UserOffline struct{}

// ============== 下行消息 (Core -> Gateway) ==============

// DownstreamMessage 下行消息封装
type DownstreamMessage struct {
	UserID  int64             `json:"UserId"`
	ConnID  int64             `json:"ConnId,omitempty"` // 为 0 时投递给用户的所有连接
	Payload DownstreamPayload `json:"Payload"`
}

// DownstreamPayload 下行消息载荷
type DownstreamPayload struct {
	Push    *model.Message `json:"Push,omitempty"`
	SendAck *SendAck       `json:"SendAck,omitempty"`
	Error   *ErrorNotice   `json:"Error,omitempty"`
}

// SendAck 发送确认，携带已持久化的消息（含 Sequence）
type SendAck struct {
	ClientMsgID string         `json:"ClientMsgId"`
	Message     *model.Message `json:"Message"`
}

// ErrorNotice 操作失败通知
type ErrorNotice struct {
	ClientMsgID string `json:"ClientMsgId,omitempty"`
	Code        int    `json:"Code"`
	Message     string `json:"Message"`
}
