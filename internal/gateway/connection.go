package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/webtransport-go"
)

var connIDCounter int64

// Connection 表示一个客户端通道
// 同一个用户可以有多个并存的通道（多端），都绑定到同一个邮箱
type Connection struct {
	id         int64
	userID     int64
	platform   string
	session    *webtransport.Session
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time

	// 每会话已投递的最大 sequence，用于丢弃乱序到达的旧推送
	// （每通道至多一次投递，缺口由客户端按 sequence 拉取恢复）
	mu      sync.Mutex
	lastSeq map[string]int64
}

func NewFromWebTransport(session *webtransport.Session, logger *slog.Logger) *Connection {
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		session:    session,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
		lastSeq:    make(map[string]int64),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

func (c *Connection) UserID() int64 {
	return c.userID
}

func (c *Connection) Platform() string {
	return c.platform
}

// Bind 绑定认证后的用户身份
func (c *Connection) Bind(userID int64, platform string) {
	c.userID = userID
	c.platform = platform
}

// Send 投递一帧数据（写入通道，按入队顺序串行写出）
func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

// AdmitSequence 判断某会话的推送是否可投递并记录水位
// 返回 false 表示该 sequence 不大于已投递水位，应丢弃
func (c *Connection) AdmitSequence(conversationID string, seq int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.lastSeq[conversationID] {
		return false
	}
	c.lastSeq[conversationID] = seq
	return true
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			stream, err := c.session.OpenStream()
			if err != nil {
				c.logger.Error("Failed to open stream", "error", err)
				continue
			}
			if _, err := stream.Write(data); err != nil {
				c.logger.Error("Failed to write to stream", "error", err)
			}
			stream.Close()
		case <-c.closeChan:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.session.CloseWithError(0, "connection closed")
	})
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
