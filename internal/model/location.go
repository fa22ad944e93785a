package model

import "time"

// UserLocation 用户连接位置信息
// 记录某个连接所在的网关节点，用于下行消息路由
type UserLocation struct {
	UserID    int64     `json:"userId"`
	NodeID    string    `json:"nodeId"`
	ConnID    int64     `json:"connId"`
	Platform  string    `json:"platform"`
	LoginTime time.Time `json:"loginTime"`
}
