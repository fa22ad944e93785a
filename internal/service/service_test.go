package service

import (
	"context"
	"strings"
	"testing"
	"time"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/model"
	"sudooom.im.messaging/internal/proto"
)

// ============== 测试替身 ==============

type fakeStore struct {
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
	markReadCalls []int64
	seq           int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
	}
}

func (f *fakeStore) addConversation(id string, a, b int64) *model.Conversation {
	conv := &model.Conversation{
		ID:           id,
		Participants: [2]int64{a, b},
		Unread:       map[int64]int64{a: 0, b: 0},
	}
	f.conversations[id] = conv
	return conv
}

func (f *fakeStore) GetOrCreateConversation(ctx context.Context, a, b int64, itemRef string) (*model.Conversation, error) {
	for _, conv := range f.conversations {
		if conv.HasParticipant(a) && conv.HasParticipant(b) && conv.ItemRef == itemRef {
			return conv, nil
		}
	}
	conv := f.addConversation("conv-new", a, b)
	conv.ItemRef = itemRef
	return conv, nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeStore) ListConversations(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	out := make([]*model.Conversation, 0)
	for _, conv := range f.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, convID string, senderID int64, content string) (*model.Message, error) {
	conv, ok := f.conversations[convID]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	f.seq++
	msg := &model.Message{
		ID:             "msg",
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Sequence:       f.seq,
		ReadBy:         []int64{senderID},
		CreatedAt:      time.Now(),
	}
	f.messages[convID] = append(f.messages[convID], msg)
	conv.Unread[conv.Peer(senderID)]++
	return msg, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, convID string, readerID int64) error {
	if _, ok := f.conversations[convID]; !ok {
		return apperrors.ErrConversationNotFound
	}
	f.markReadCalls = append(f.markReadCalls, readerID)
	f.conversations[convID].Unread[readerID] = 0
	return nil
}

func (f *fakeStore) ListMessagesAfter(ctx context.Context, convID string, afterSeq int64, limit int) ([]*model.Message, error) {
	out := make([]*model.Message, 0)
	for _, msg := range f.messages[convID] {
		if msg.Sequence > afterSeq {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeLocations struct {
	locations map[int64][]model.UserLocation
}

func (f *fakeLocations) GetUserLocations(ctx context.Context, userID int64) ([]model.UserLocation, error) {
	return f.locations[userID], nil
}

type fakePublisher struct {
	published []publishedMsg
}

type publishedMsg struct {
	nodeID string
	msg    *proto.DownstreamMessage
}

func (f *fakePublisher) PublishToGateway(nodeID string, msg *proto.DownstreamMessage) error {
	f.published = append(f.published, publishedMsg{nodeID: nodeID, msg: msg})
	return nil
}

type fakeResolver struct {
	users map[int64]bool // userID -> active
}

func (f *fakeResolver) ResolveCredential(ctx context.Context, credential string) (*identity.Principal, error) {
	return nil, apperrors.ErrCredentialInvalid
}

func (f *fakeResolver) LookupUser(ctx context.Context, userID int64) (*identity.Principal, error) {
	active, ok := f.users[userID]
	if !ok {
		return nil, apperrors.ErrUnknownParticipant
	}
	return &identity.Principal{UserID: userID, Active: active}, nil
}

// ============== DirectoryService ==============

func TestDirectory_GetOrCreate_SelfConversation(t *testing.T) {
	svc := NewDirectoryService(newFakeStore(), &fakeResolver{users: map[int64]bool{1: true}})

	_, err := svc.GetOrCreate(context.Background(), 1, 1, "")
	if !apperrors.Is(err, apperrors.ErrSelfConversation) {
		t.Errorf("Expected ErrSelfConversation, got %v", err)
	}
}

func TestDirectory_GetOrCreate_UnknownPeer(t *testing.T) {
	svc := NewDirectoryService(newFakeStore(), &fakeResolver{users: map[int64]bool{1: true}})

	_, err := svc.GetOrCreate(context.Background(), 1, 999, "")
	if !apperrors.Is(err, apperrors.ErrUnknownParticipant) {
		t.Errorf("Expected ErrUnknownParticipant, got %v", err)
	}
}

func TestDirectory_GetOrCreate_Idempotent(t *testing.T) {
	store := newFakeStore()
	svc := NewDirectoryService(store, &fakeResolver{users: map[int64]bool{1: true, 2: true}})
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, 1, 2, "item-7")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	// 参与者顺序无关，重复调用返回同一个会话
	second, err := svc.GetOrCreate(ctx, 2, 1, "item-7")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected same conversation, got %s and %s", first.ID, second.ID)
	}
}

// ============== IngestService ==============

func TestIngest_Send_Validation(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)
	svc := NewIngestService(store, nil, 10)
	ctx := context.Background()

	tests := []struct {
		name     string
		content  string
		expected *apperrors.AppError
	}{
		{"empty content", "", apperrors.ErrEmptyContent},
		{"whitespace only", "   \n\t ", apperrors.ErrEmptyContent},
		{"too long", strings.Repeat("a", 11), apperrors.ErrContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(ctx, "conv-1", 1, tt.content)
			if !apperrors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestIngest_Send_NotAParticipant(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)
	svc := NewIngestService(store, nil, 2000)

	_, err := svc.Send(context.Background(), "conv-1", 3, "hello")
	if !apperrors.Is(err, apperrors.ErrNotAParticipant) {
		t.Errorf("Expected ErrNotAParticipant, got %v", err)
	}
}

func TestIngest_Send_ConversationNotFound(t *testing.T) {
	svc := NewIngestService(newFakeStore(), nil, 2000)

	_, err := svc.Send(context.Background(), "missing", 1, "hello")
	if !apperrors.Is(err, apperrors.ErrConversationNotFound) {
		t.Errorf("Expected ErrConversationNotFound, got %v", err)
	}
}

func TestIngest_Send_FanoutToAllParticipants(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)

	// 发送者有两个在线连接，接收者有一个
	locs := &fakeLocations{locations: map[int64][]model.UserLocation{
		1: {
			{UserID: 1, NodeID: "gw-1", ConnID: 11},
			{UserID: 1, NodeID: "gw-2", ConnID: 12},
		},
		2: {
			{UserID: 2, NodeID: "gw-1", ConnID: 21},
		},
	}}
	pub := &fakePublisher{}
	dispatcher := NewDispatcherService(locs, pub)
	svc := NewIngestService(store, dispatcher, 2000)

	msg, err := svc.Send(context.Background(), "conv-1", 1, "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", msg.Sequence)
	}

	// 每个在线连接恰好收到一次推送，发送者自己的连接也在内
	if len(pub.published) != 3 {
		t.Fatalf("Expected 3 pushes, got %d", len(pub.published))
	}
	seen := make(map[int64]bool)
	for _, p := range pub.published {
		if p.msg.Payload.Push == nil {
			t.Fatal("Expected a push payload")
		}
		if p.msg.Payload.Push.Sequence != msg.Sequence {
			t.Errorf("Expected pushed sequence %d, got %d", msg.Sequence, p.msg.Payload.Push.Sequence)
		}
		seen[p.msg.ConnID] = true
	}
	for _, connID := range []int64{11, 12, 21} {
		if !seen[connID] {
			t.Errorf("Expected push to connection %d", connID)
		}
	}
}

func TestIngest_Send_OfflinePeer(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)

	locs := &fakeLocations{locations: map[int64][]model.UserLocation{}}
	pub := &fakePublisher{}
	svc := NewIngestService(store, NewDispatcherService(locs, pub), 2000)

	// 双方都离线：发送仍然成功，没有任何推送排队
	if _, err := svc.Send(context.Background(), "conv-1", 1, "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(pub.published) != 0 {
		t.Errorf("Expected no pushes for offline users, got %d", len(pub.published))
	}
}

func TestIngest_ListMessages_Membership(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)
	svc := NewIngestService(store, nil, 2000)

	if _, err := svc.ListMessages(context.Background(), "conv-1", 3, 0, 0); !apperrors.Is(err, apperrors.ErrNotAParticipant) {
		t.Errorf("Expected ErrNotAParticipant, got %v", err)
	}
}

// ============== ReconcileService ==============

func TestReconcile_MarkRead_NotAParticipant(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)
	svc := NewReconcileService(store)

	err := svc.MarkRead(context.Background(), "conv-1", 3)
	if !apperrors.Is(err, apperrors.ErrNotAParticipant) {
		t.Errorf("Expected ErrNotAParticipant, got %v", err)
	}
	if len(store.markReadCalls) != 0 {
		t.Error("Expected no store call for a non-participant")
	}
}

func TestReconcile_MarkRead_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)
	svc := NewReconcileService(store)
	ctx := context.Background()

	if err := svc.MarkRead(ctx, "conv-1", 2); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := svc.MarkRead(ctx, "conv-1", 2); err != nil {
		t.Fatalf("Repeated MarkRead failed: %v", err)
	}
	if store.conversations["conv-1"].Unread[2] != 0 {
		t.Error("Expected unread count to stay zero")
	}
}

// ============== DispatcherService ==============

func TestDispatcher_SendAck_DirectToConnection(t *testing.T) {
	pub := &fakePublisher{}
	dispatcher := NewDispatcherService(&fakeLocations{}, pub)

	msg := &model.Message{ID: "m1", Sequence: 5}
	dispatcher.SendAck("gw-1", 42, 1, "client-1", msg)

	if len(pub.published) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(pub.published))
	}
	p := pub.published[0]
	if p.nodeID != "gw-1" {
		t.Errorf("Expected node gw-1, got %s", p.nodeID)
	}
	if p.msg.ConnID != 42 {
		t.Errorf("Expected conn 42, got %d", p.msg.ConnID)
	}
	if p.msg.Payload.SendAck == nil || p.msg.Payload.SendAck.ClientMsgID != "client-1" {
		t.Error("Expected ack payload with client msg id")
	}
}

func TestDispatcher_SendError(t *testing.T) {
	pub := &fakePublisher{}
	dispatcher := NewDispatcherService(&fakeLocations{}, pub)

	dispatcher.SendError("gw-1", 42, 1, "client-1", apperrors.CodeEmptyContent, "message content is empty")

	if len(pub.published) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(pub.published))
	}
	notice := pub.published[0].msg.Payload.Error
	if notice == nil || notice.Code != apperrors.CodeEmptyContent {
		t.Errorf("Expected error notice with code %d", apperrors.CodeEmptyContent)
	}
}
