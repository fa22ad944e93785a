package handler

import (
	"context"
	"testing"
	"time"

	apperrors "sudooom.im.messaging/internal/errors"
	"sudooom.im.messaging/internal/model"
	"sudooom.im.messaging/internal/proto"
	"sudooom.im.messaging/internal/service"
)

type fakeStore struct {
	conversations map[string]*model.Conversation
	seq           int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{conversations: make(map[string]*model.Conversation)}
}

func (f *fakeStore) addConversation(id string, a, b int64) {
	f.conversations[id] = &model.Conversation{
		ID:           id,
		Participants: [2]int64{a, b},
		Unread:       map[int64]int64{a: 0, b: 0},
	}
}

func (f *fakeStore) GetOrCreateConversation(ctx context.Context, a, b int64, itemRef string) (*model.Conversation, error) {
	return nil, apperrors.ErrServerError
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeStore) ListConversations(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, convID string, senderID int64, content string) (*model.Message, error) {
	f.seq++
	return &model.Message{
		ID:             "msg",
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Sequence:       f.seq,
		ReadBy:         []int64{senderID},
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, convID string, readerID int64) error {
	if _, ok := f.conversations[convID]; !ok {
		return apperrors.ErrConversationNotFound
	}
	return nil
}

func (f *fakeStore) ListMessagesAfter(ctx context.Context, convID string, afterSeq int64, limit int) ([]*model.Message, error) {
	return nil, nil
}

type fakeLocations struct {
	locations map[int64][]model.UserLocation
}

func (f *fakeLocations) GetUserLocations(ctx context.Context, userID int64) ([]model.UserLocation, error) {
	return f.locations[userID], nil
}

type fakePublisher struct {
	published []*proto.DownstreamMessage
}

func (f *fakePublisher) PublishToGateway(nodeID string, msg *proto.DownstreamMessage) error {
	f.published = append(f.published, msg)
	return nil
}

func newTestHandler(store *fakeStore, locs *fakeLocations, pub *fakePublisher) *UpstreamHandler {
	dispatcher := service.NewDispatcherService(locs, pub)
	ingest := service.NewIngestService(store, dispatcher, 2000)
	reconcile := service.NewReconcileService(store)
	return NewUpstreamHandler(ingest, reconcile, dispatcher)
}

func TestHandleSend_AckAndPush(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 1, 2)
	locs := &fakeLocations{locations: map[int64][]model.UserLocation{
		2: {{UserID: 2, NodeID: "gw-2", ConnID: 21}},
	}}
	pub := &fakePublisher{}
	h := newTestHandler(store, locs, pub)

	h.HandleSend(context.Background(), &proto.UpstreamMessage{
		NodeID: "gw-1",
		ConnID: 11,
		UserID: 1,
		Send: &proto.SendRequest{
			ClientMsgID:    "c-1",
			ConversationID: "conv-1",
			Content:        "hello",
		},
	})

	// 接收者一条推送 + 发送连接一条 ACK
	var acks, pushes int
	for _, msg := range pub.published {
		switch {
		case msg.Payload.SendAck != nil:
			acks++
			if msg.ConnID != 11 {
				t.Errorf("Expected ack on conn 11, got %d", msg.ConnID)
			}
			if msg.Payload.SendAck.ClientMsgID != "c-1" {
				t.Errorf("Expected client msg id 'c-1', got '%s'", msg.Payload.SendAck.ClientMsgID)
			}
			if msg.Payload.SendAck.Message.Sequence != 1 {
				t.Errorf("Expected acked sequence 1, got %d", msg.Payload.SendAck.Message.Sequence)
			}
		case msg.Payload.Push != nil:
			pushes++
			if msg.ConnID != 21 {
				t.Errorf("Expected push on conn 21, got %d", msg.ConnID)
			}
		}
	}
	if acks != 1 {
		t.Errorf("Expected 1 ack, got %d", acks)
	}
	if pushes != 1 {
		t.Errorf("Expected 1 push, got %d", pushes)
	}
}

func TestHandleSend_RejectedWithErrorNotice(t *testing.T) {
	store := newFakeStore()
	store.addConversation("conv-1", 2, 3)
	pub := &fakePublisher{}
	h := newTestHandler(store, &fakeLocations{}, pub)

	// 非参与者发送：向来源连接回错误通知
	h.HandleSend(context.Background(), &proto.UpstreamMessage{
		NodeID: "gw-1",
		ConnID: 11,
		UserID: 1,
		Send: &proto.SendRequest{
			ClientMsgID:    "c-1",
			ConversationID: "conv-1",
			Content:        "hello",
		},
	})

	if len(pub.published) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(pub.published))
	}
	notice := pub.published[0].Payload.Error
	if notice == nil {
		t.Fatal("Expected an error notice")
	}
	if notice.Code != apperrors.CodeNotAParticipant {
		t.Errorf("Expected code %d, got %d", apperrors.CodeNotAParticipant, notice.Code)
	}
	if notice.ClientMsgID != "c-1" {
		t.Errorf("Expected client msg id 'c-1', got '%s'", notice.ClientMsgID)
	}
}

func TestHandleMarkRead_UnknownConversation(t *testing.T) {
	pub := &fakePublisher{}
	h := newTestHandler(newFakeStore(), &fakeLocations{}, pub)

	h.HandleMarkRead(context.Background(), &proto.UpstreamMessage{
		NodeID:   "gw-1",
		ConnID:   11,
		UserID:   1,
		MarkRead: &proto.MarkRead{ConversationID: "missing"},
	})

	if len(pub.published) != 1 || pub.published[0].Payload.Error == nil {
		t.Fatal("Expected an error notice for unknown conversation")
	}
	if pub.published[0].Payload.Error.Code != apperrors.CodeConversationNotFound {
		t.Errorf("Expected code %d, got %d",
			apperrors.CodeConversationNotFound, pub.published[0].Payload.Error.Code)
	}
}
