package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sudooom.im.messaging/internal/health"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/service"
)

// NewRouter 组装 REST 路由
func NewRouter(
	resolver identity.Resolver,
	directory *service.DirectoryService,
	ingest *service.IngestService,
	reconcile *service.ReconcileService,
	checker *health.Checker,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(Metrics)

	h := NewChatHandler(directory, ingest, reconcile)
	auth := NewAuthMiddleware(resolver)

	// 运维端点
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", checker.ServeHTTP)
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		if checker.IsHealthy(req.Context()) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	// 业务端点
	r.Route("/api/chat", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Post("/conversations/{id}/read", h.MarkRead)
	})

	return r
}
