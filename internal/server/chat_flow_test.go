package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"market-chat/config"
	"market-chat/internal/chatclient"
	"market-chat/internal/domain"
	"market-chat/internal/handler"
	"market-chat/internal/services"
	"market-chat/internal/ws"
	market_errors "market-chat/pkg/errors"
)

const testSecret = "test-secret"

// In-memory repositories standing in for the document store.

type memStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]domain.Conversation
	messages      []domain.Message
}

func newMemStore() *memStore {
	return &memStore{conversations: make(map[uuid.UUID]domain.Conversation)}
}

type memConversationRepo struct{ store *memStore }

func (r *memConversationRepo) Create(_ context.Context, c *domain.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.store.conversations[c.ID] = *c
	return nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.conversations[id]
	if !ok {
		return domain.Conversation{}, market_errors.ErrNotFound
	}
	return c, nil
}

func (r *memConversationRepo) FindByMembersAndProduct(_ context.Context, userA, userB, productID string) (domain.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.conversations {
		if c.ProductID != productID || len(c.Members) != 2 {
			continue
		}
		if (c.Members[0] == userA && c.Members[1] == userB) || (c.Members[0] == userB && c.Members[1] == userA) {
			return c, nil
		}
	}
	return domain.Conversation{}, market_errors.ErrNotFound
}

func (r *memConversationRepo) ListForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.store.conversations {
		if c.HasMember(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memConversationRepo) RemoveMember(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.conversations[id]
	if !ok {
		return false, market_errors.ErrNotFound
	}
	remaining := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if m != userID {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == 0 {
		delete(r.store.conversations, id)
		// cascade: drop the conversation's messages with it
		kept := r.store.messages[:0]
		for _, m := range r.store.messages {
			if m.ConversationID != id {
				kept = append(kept, m)
			}
		}
		r.store.messages = kept
		return true, nil
	}
	c.Members = remaining
	c.UpdatedAt = time.Now().UTC()
	r.store.conversations[id] = c
	return false, nil
}

type memMessageRepo struct{ store *memStore }

func (r *memMessageRepo) Append(_ context.Context, m *domain.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	r.store.messages = append(r.store.messages, *m)
	return nil
}

func (r *memMessageRepo) ListForConversation(_ context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Message
	for _, m := range r.store.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memProductRepo struct{}

func (r *memProductRepo) GetByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range ids {
		out[id] = domain.Product{ID: id, Name: "listing " + id}
	}
	return out, nil
}

type testEnv struct {
	ts    *httptest.Server
	hub   *ws.Hub
	store *memStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{AppPort: "0", AppMode: TestMode, JWTSecret: testSecret}
	store := newMemStore()

	authService := services.NewAuthService(cfg.JWTSecret)
	conversationService := services.NewConversationService(&memConversationRepo{store: store}, &memProductRepo{})
	messageService := services.NewMessageService(&memMessageRepo{store: store})

	hub := ws.NewHub(nil)

	srv := New(cfg, nil)
	srv.SetupRoutes(&Handlers{
		Chat: handler.NewChatHandler(conversationService, messageService, nil),
		WS:   ws.NewHandler(hub, authService, nil, nil),
	}, authService, nil)

	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: store}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

func mintToken(t *testing.T, userID, name string) string {
	t.Helper()
	claims := services.AccessClaims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) newSession(t *testing.T, userID, name string) *chatclient.Session {
	t.Helper()
	api := chatclient.NewAPI(e.ts.URL, mintToken(t, userID, name))
	session := chatclient.NewSession(api, e.wsURL(), userID, name)
	t.Cleanup(session.Close)
	return session
}

func (e *testEnv) connectAndRegister(t *testing.T, s *chatclient.Session, userID string) {
	t.Helper()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	waitFor(t, "presence registration of "+userID, func() bool {
		_, ok := e.hub.LookupUser(userID)
		return ok
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMessageDeliveryToRoomMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newSession(t, "1", "alice")
	bob := env.newSession(t, "2", "bob")

	env.connectAndRegister(t, alice, "1")
	env.connectAndRegister(t, bob, "2")

	var notifications []ws.NotificationPayload
	var notifMu sync.Mutex
	bob.OnNotification(func(n ws.NotificationPayload) {
		notifMu.Lock()
		notifications = append(notifications, n)
		notifMu.Unlock()
	})

	conv, err := alice.API().CreateConversation(ctx, "1", "2", "p1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if err := alice.LoadConversations(ctx); err != nil {
		t.Fatalf("load conversations: %v", err)
	}
	if err := alice.Open(ctx, conv.ID); err != nil {
		t.Fatalf("alice open: %v", err)
	}
	if err := bob.Open(ctx, conv.ID); err != nil {
		t.Fatalf("bob open: %v", err)
	}
	waitFor(t, "both members in room", func() bool { return env.hub.RoomSize(conv.ID) == 2 })

	alice.SetInput("hi")
	if err := alice.Send(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "bob's transcript", func() bool { return bob.Transcript().Len() == 1 })
	if got := bob.Transcript().Messages()[0].Text; got != "hi" {
		t.Fatalf("expected %q, got %q", "hi", got)
	}

	// sender's transcript has exactly one copy: the submission response,
	// with no broadcast echo
	if alice.Transcript().Len() != 1 {
		t.Fatalf("expected 1 entry in alice's transcript, got %d", alice.Transcript().Len())
	}

	// recipient was viewing the room, so no notification fires
	time.Sleep(150 * time.Millisecond)
	notifMu.Lock()
	defer notifMu.Unlock()
	if len(notifications) != 0 {
		t.Fatalf("expected no notification for an in-room recipient, got %+v", notifications)
	}
}

func TestNotificationWhenRecipientOutsideRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newSession(t, "1", "alice")
	bob := env.newSession(t, "2", "bob")

	env.connectAndRegister(t, alice, "1")
	env.connectAndRegister(t, bob, "2")

	received := make(chan ws.NotificationPayload, 1)
	bob.OnNotification(func(n ws.NotificationPayload) { received <- n })

	conv, err := alice.API().CreateConversation(ctx, "1", "2", "p1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := alice.LoadConversations(ctx); err != nil {
		t.Fatalf("load conversations: %v", err)
	}
	if err := alice.Open(ctx, conv.ID); err != nil {
		t.Fatalf("open: %v", err)
	}

	alice.SetInput("hi")
	if err := alice.Send(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case n := <-received:
		if n.ConversationID != conv.ID {
			t.Fatalf("notification for wrong conversation: %s", n.ConversationID)
		}
		if n.SenderName != "alice" || n.Text != "hi" {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected a new_notification for the out-of-room recipient")
	}

	// the message is durably persisted and visible once bob opens the room
	if err := bob.Open(ctx, conv.ID); err != nil {
		t.Fatalf("bob open: %v", err)
	}
	if bob.Transcript().Len() != 1 {
		t.Fatalf("expected history of 1 message, got %d", bob.Transcript().Len())
	}
}

func TestSendSucceedsWithRecipientOffline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newSession(t, "1", "alice")
	env.connectAndRegister(t, alice, "1")

	conv, err := alice.API().CreateConversation(ctx, "1", "2", "p1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := alice.LoadConversations(ctx); err != nil {
		t.Fatalf("load conversations: %v", err)
	}
	if err := alice.Open(ctx, conv.ID); err != nil {
		t.Fatalf("open: %v", err)
	}

	alice.SetInput("hi")
	if err := alice.Send(ctx); err != nil {
		t.Fatalf("send with offline recipient must not error: %v", err)
	}

	messages, err := alice.API().Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "hi" {
		t.Fatalf("expected the message to be retrievable later, got %+v", messages)
	}
}

func TestLeaveTearsDownConversationAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newSession(t, "1", "alice")
	bob := env.newSession(t, "2", "bob")

	env.connectAndRegister(t, alice, "1")
	env.connectAndRegister(t, bob, "2")

	conv, err := alice.API().CreateConversation(ctx, "1", "2", "p1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := alice.LoadConversations(ctx); err != nil {
		t.Fatalf("load conversations: %v", err)
	}
	if err := alice.Open(ctx, conv.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	alice.SetInput("hi")
	if err := alice.Send(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := alice.Leave(ctx); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if len(alice.Conversations()) != 0 {
		t.Fatal("alice's local list must drop the conversation")
	}

	// bob can still read history while he remains a member
	if err := bob.LoadConversations(ctx); err != nil {
		t.Fatalf("bob load: %v", err)
	}
	if len(bob.Conversations()) != 1 {
		t.Fatalf("bob should still list the conversation, got %d", len(bob.Conversations()))
	}

	if err := bob.Open(ctx, conv.ID); err != nil {
		t.Fatalf("bob open: %v", err)
	}
	if err := bob.Leave(ctx); err != nil {
		t.Fatalf("bob leave: %v", err)
	}

	if err := bob.LoadConversations(ctx); err != nil {
		t.Fatalf("bob reload: %v", err)
	}
	if len(bob.Conversations()) != 0 {
		t.Fatal("conversation must vanish for the last leaver")
	}

	if _, err := bob.API().Messages(ctx, conv.ID); err != nil {
		t.Fatalf("list messages: %v", err)
	}
	env.store.mu.Lock()
	remaining := len(env.store.messages)
	env.store.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("cascade must delete messages, %d left", remaining)
	}
}

func TestFindOrCreateOverRESTIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newSession(t, "1", "alice")
	bob := env.newSession(t, "2", "bob")

	first, err := alice.API().CreateConversation(ctx, "1", "2", "p1")
	if err != nil {
		t.Fatalf("alice create: %v", err)
	}
	second, err := bob.API().CreateConversation(ctx, "2", "1", "p1")
	if err != nil {
		t.Fatalf("bob create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestRESTRejectsUnauthenticatedCalls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	api := chatclient.NewAPI(env.ts.URL, "not-a-token")
	if _, err := api.Conversations(ctx, "1"); err == nil {
		t.Fatal("expected an auth failure")
	}
}
