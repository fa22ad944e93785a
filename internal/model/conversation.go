package model

import "time"

// LastMessage 会话最近一条消息的冗余快照，用于会话列表展示
type LastMessage struct {
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Sequence  int64     `json:"sequence"`
}

// Conversation 双人会话
// Participants 创建后不可变，顺序无关；ItemRef 与参与者对共同构成去重键
type Conversation struct {
	ID              string          `json:"id"`
	Participants    [2]int64        `json:"participants"`
	ItemRef         string          `json:"itemRef,omitempty"`
	LastMessage     *LastMessage    `json:"lastMessage,omitempty"`
	Unread          map[int64]int64 `json:"unread"`
	SequenceCounter int64           `json:"sequenceCounter"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// HasParticipant 判断用户是否为会话参与者
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer 返回会话中另一个参与者
func (c *Conversation) Peer(userID int64) int64 {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}
