package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	apperrors "sudooom.im.messaging/internal/errors"
)

// Principal 凭证解析结果
type Principal struct {
	UserID int64 `json:"userId"`
	Active bool  `json:"active"`
}

// Resolver 身份协作方的窄接口
// 凭证的签发属于外部身份服务，消息核心只做解析和状态检查
type Resolver interface {
	// ResolveCredential 解析不透明凭证，凭证无效或账号停用时返回对应错误
	ResolveCredential(ctx context.Context, credential string) (*Principal, error)
	// LookupUser 按用户 id 查询账号记录，不存在时返回 ErrUnknownParticipant
	LookupUser(ctx context.Context, userID int64) (*Principal, error)
}

const accountKeyPrefix = "msg:user:account:"

// buildAccountKey 构建账号记录 Key（由身份服务写入）
func buildAccountKey(userID int64) string {
	return fmt.Sprintf("%s%d", accountKeyPrefix, userID)
}

// Claims JWT 声明
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTResolver 基于 JWT + Redis 账号记录的凭证解析器
// JWT 校验签名与有效期，Redis 中的账号记录提供存在性与停用状态
type JWTResolver struct {
	secretKey   []byte
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewJWTResolver 创建凭证解析器
func NewJWTResolver(secret string, redisClient *redis.Client) *JWTResolver {
	return &JWTResolver{
		secretKey:   []byte(secret),
		redisClient: redisClient,
		logger:      slog.Default(),
	}
}

// ResolveCredential 实现 Resolver
func (r *JWTResolver) ResolveCredential(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, apperrors.ErrCredentialMissing
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrCredentialInvalid
		}
		return r.secretKey, nil
	})
	if err != nil {
		return nil, apperrors.ErrCredentialInvalid.Wrap(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrCredentialInvalid
	}

	principal, err := r.LookupUser(ctx, claims.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnknownParticipant) {
			// 凭证指向不存在的账号
			return nil, apperrors.ErrCredentialInvalid
		}
		return nil, err
	}
	if !principal.Active {
		return nil, apperrors.ErrAccountInactive
	}

	return principal, nil
}

// LookupUser 实现 Resolver
func (r *JWTResolver) LookupUser(ctx context.Context, userID int64) (*Principal, error) {
	data, err := r.redisClient.Get(ctx, buildAccountKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrUnknownParticipant
	}
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	var principal Principal
	if err := json.Unmarshal([]byte(data), &principal); err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	principal.UserID = userID

	return &principal, nil
}
