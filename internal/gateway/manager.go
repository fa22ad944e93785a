package gateway

import (
	"errors"
	"sync"
)

var ErrConnectionClosed = errors.New("connection closed")

// Manager 管理所有通道及其邮箱绑定
// 邮箱以 userID 为键，一个邮箱下可挂多个通道（多端）
type Manager struct {
	connections map[int64]*Connection
	mailboxes   map[int64]map[int64]*Connection // userID -> connID -> Connection
	mu          sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[int64]*Connection),
		mailboxes:   make(map[int64]map[int64]*Connection),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove 移除通道并解绑邮箱
// 断开不是错误状态，不触及任何会话数据
func (m *Manager) Remove(connID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}

	delete(m.connections, connID)

	if conn.UserID() > 0 {
		if box, ok := m.mailboxes[conn.UserID()]; ok {
			delete(box, connID)
			if len(box) == 0 {
				delete(m.mailboxes, conn.UserID())
			}
		}
	}
}

func (m *Manager) Get(connID int64) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

// Bind 将通道绑定到用户邮箱
func (m *Manager) Bind(connID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}

	if _, ok := m.mailboxes[userID]; !ok {
		m.mailboxes[userID] = make(map[int64]*Connection)
	}
	m.mailboxes[userID][connID] = conn
}

// GetByUserID 获取用户邮箱下的所有通道
func (m *Manager) GetByUserID(userID int64) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	box, ok := m.mailboxes[userID]
	if !ok {
		return nil
	}

	conns := make([]*Connection, 0, len(box))
	for _, conn := range box {
		conns = append(conns, conn)
	}
	return conns
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
