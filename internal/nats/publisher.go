package nats

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"sudooom.im.messaging/internal/proto"
)

// MessagePublisher 下行消息发布器
type MessagePublisher struct {
	nc *nats.Conn
}

// NewMessagePublisher 创建下行消息发布器
func NewMessagePublisher(nc *nats.Conn) *MessagePublisher {
	return &MessagePublisher{nc: nc}
}

// PublishToGateway 发布下行消息到指定网关节点
func (p *MessagePublisher) PublishToGateway(nodeID string, msg *proto.DownstreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(BuildGatewayDownstreamSubject(nodeID), data)
}

// PublishUpstream 发布上行消息到 Core
func (p *MessagePublisher) PublishUpstream(msg *proto.UpstreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(SubjectCoreUpstream, data)
}
