package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/metrics"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext 从请求上下文取出认证主体
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalContextKey).(*identity.Principal)
	return p
}

// AuthMiddleware Bearer 凭证认证
type AuthMiddleware struct {
	resolver identity.Resolver
	logger   *slog.Logger
}

func NewAuthMiddleware(resolver identity.Resolver) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   slog.Default(),
	}
}

// RequireAuth 校验 Authorization 头并把主体写入上下文
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, apperrors.ErrCredentialMissing)
			return
		}

		credential := strings.TrimPrefix(header, "Bearer ")
		if credential == header || credential == "" {
			writeError(w, apperrors.ErrCredentialMissing)
			return
		}

		principal, err := m.resolver.ResolveCredential(r.Context(), credential)
		if err != nil {
			m.logger.Debug("Credential rejected", "error", err)
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter 包装 ResponseWriter 以捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics 记录每个请求的 Prometheus 指标
// 路径使用 chi 路由模板，避免路径参数造成高基数
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(time.Since(start).Seconds())
	})
}
