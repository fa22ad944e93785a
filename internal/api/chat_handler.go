package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/model"
	"sudooom.im.messaging/internal/service"
)

// ChatHandler 会话与消息的 REST 接口
type ChatHandler struct {
	directory *service.DirectoryService
	ingest    *service.IngestService
	reconcile *service.ReconcileService
	logger    *slog.Logger
}

func NewChatHandler(directory *service.DirectoryService, ingest *service.IngestService, reconcile *service.ReconcileService) *ChatHandler {
	return &ChatHandler{
		directory: directory,
		ingest:    ingest,
		reconcile: reconcile,
		logger:    slog.Default(),
	}
}

// conversationView 面向调用者的会话视图
// 未读计数只暴露调用者自己的那一份
type conversationView struct {
	ID          string             `json:"id"`
	PeerID      int64              `json:"peerId"`
	ItemRef     string             `json:"itemRef,omitempty"`
	LastMessage *model.LastMessage `json:"lastMessage,omitempty"`
	UnreadCount int64              `json:"unreadCount"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func newConversationView(conv *model.Conversation, callerID int64) *conversationView {
	return &conversationView{
		ID:          conv.ID,
		PeerID:      conv.Peer(callerID),
		ItemRef:     conv.ItemRef,
		LastMessage: conv.LastMessage,
		UnreadCount: conv.Unread[callerID],
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}
}

type createConversationRequest struct {
	PeerID  int64  `json:"peerId"`
	ItemRef string `json:"itemRef"`
}

// CreateConversation 查找或创建会话
// 相同去重键（参与者对 + itemRef）重复调用返回同一个会话
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ErrServerError.Wrap(err))
		return
	}

	conv, err := h.directory.GetOrCreate(r.Context(), principal.UserID, req.PeerID, req.ItemRef)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newConversationView(conv, principal.UserID))
}

// ListConversations 会话列表（按最近更新倒序）
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	convs, err := h.directory.List(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]*conversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, newConversationView(conv, principal.UserID))
	}
	writeJSON(w, http.StatusOK, views)
}

// ListMessages 按 sequence 升序获取会话消息
// after 参数用于断线后的缺口恢复；读取同时将会话标记为已读
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	convID := chi.URLParam(r, "id")

	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := h.ingest.ListMessages(r.Context(), convID, principal.UserID, afterSeq, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	// 拉取即已读：对账是幂等的，失败只记录，不影响本次读取
	if err := h.reconcile.MarkRead(r.Context(), convID, principal.UserID); err != nil {
		h.logger.Warn("Implicit markRead failed",
			"conversationId", convID,
			"userId", principal.UserID,
			"error", err)
	}

	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage 通过 REST 发送消息
// 与实时通道共用同一条接收管道，落盘即成功，投递尽力而为
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	convID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ErrServerError.Wrap(err))
		return
	}

	msg, err := h.ingest.Send(r.Context(), convID, principal.UserID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead 显式标记会话已读（幂等）
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	convID := chi.URLParam(r, "id")

	if err := h.reconcile.MarkRead(r.Context(), convID, principal.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"code": 0})
}
