package model

import "time"

// Message 会话消息
// Sequence 由持久化时的会话内原子自增分配，是会话内的全序；CreatedAt 仅作展示
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	Sequence       int64     `json:"sequence"`
	ReadBy         []int64   `json:"readBy"`
	CreatedAt      time.Time `json:"createdAt"`
}

// IsReadBy 判断用户是否已读该消息
func (m *Message) IsReadBy(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
