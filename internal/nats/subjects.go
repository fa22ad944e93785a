package nats

// NATS Subject 常量定义
const (
	// SubjectCoreUpstream Gateway -> Core 上行消息
	SubjectCoreUpstream = "msg.core.upstream"

	// SubjectGatewayDownstreamPrefix Core -> Gateway 下行消息前缀
	// 完整格式: msg.gateway.{node_id}.downstream
	SubjectGatewayDownstreamPrefix = "msg.gateway."
	SubjectGatewayDownstreamSuffix = ".downstream"

	// SubjectGatewayBroadcast Core -> All Gateway 广播消息
	SubjectGatewayBroadcast = "msg.gateway.broadcast"

	// QueueGroupCore Core 订阅队列组名称
	QueueGroupCore = "msg-core"
)

// BuildGatewayDownstreamSubject 构建网关节点下行 Subject
func BuildGatewayDownstreamSubject(nodeID string) string {
	return SubjectGatewayDownstreamPrefix + nodeID + SubjectGatewayDownstreamSuffix
}
