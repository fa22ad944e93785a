package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.messaging/internal/model"
)

const (
	// 用户位置 TTL: 2 分钟，心跳续期
	locationTTL = 2 * time.Minute

	locationKeyPrefix = "msg:user:location:"
)

// buildLocationKey 构建用户位置 Hash 的 Key
// Key: msg:user:location:{userId}，field: {nodeId}:{connId}
func buildLocationKey(userID int64) string {
	return fmt.Sprintf("%s%d", locationKeyPrefix, userID)
}

func buildLocationField(nodeID string, connID int64) string {
	return fmt.Sprintf("%s:%d", nodeID, connID)
}

// Registry 用户位置注册表（基于 Redis Hash，支持多端）
type Registry struct {
	client *redis.Client
	nodeID string
	logger *slog.Logger
}

// NewRegistry 创建位置注册表
func NewRegistry(client *redis.Client, nodeID string) *Registry {
	return &Registry{
		client: client,
		nodeID: nodeID,
		logger: slog.Default(),
	}
}

// Register 注册连接位置，连接断开前由心跳续期
func (r *Registry) Register(ctx context.Context, userID, connID int64, platform string) error {
	loc := model.UserLocation{
		UserID:    userID,
		NodeID:    r.nodeID,
		ConnID:    connID,
		Platform:  platform,
		LoginTime: time.Now(),
	}

	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	key := buildLocationKey(userID)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, buildLocationField(r.nodeID, connID), data)
	pipe.Expire(ctx, key, locationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	r.logger.Debug("Registered user location",
		"userId", userID,
		"connId", connID,
		"nodeId", r.nodeID)
	return nil
}

// Unregister 移除连接位置
func (r *Registry) Unregister(ctx context.Context, userID, connID int64) error {
	key := buildLocationKey(userID)
	return r.client.HDel(ctx, key, buildLocationField(r.nodeID, connID)).Err()
}

// Refresh 刷新用户位置 TTL（心跳时调用）
func (r *Registry) Refresh(ctx context.Context, userID int64) error {
	return r.client.Expire(ctx, buildLocationKey(userID), locationTTL).Err()
}

// GetUserLocations 获取用户所有在线连接的位置
func (r *Registry) GetUserLocations(ctx context.Context, userID int64) ([]model.UserLocation, error) {
	entries, err := r.client.HGetAll(ctx, buildLocationKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]model.UserLocation, 0, len(entries))
	for _, data := range entries {
		var loc model.UserLocation
		if err := json.Unmarshal([]byte(data), &loc); err != nil {
			r.logger.Warn("Skipping malformed location entry", "userId", userID, "error", err)
			continue
		}
		locations = append(locations, loc)
	}

	return locations, nil
}
