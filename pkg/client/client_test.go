package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

// fakeServer stands in for the real backend: REST history endpoints plus
// websocket endpoints that the tests drive directly.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	user      types.User
	questions []*types.Question
	messages  []*types.DirectMessage
	chatConns map[int64]*websocket.Conn
	chatDials map[int64]int
	qaConns   map[int64]*websocket.Conn
	received  []types.ChatSend
	echoChat  bool // echo received chat sends back as confirmed new_message frames
	nextID    int64
}

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:         t,
		user:      types.User{ID: 9, FullName: "Pat Jones", Role: types.RoleStudent},
		chatConns: make(map[int64]*websocket.Conn),
		chatDials: make(map[int64]int),
		qaConns:   make(map[int64]*websocket.Conn),
		nextID:    100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		fs.writeJSON(w, fs.user)
	})
	mux.HandleFunc("GET /api/v1/qa/{class_id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.writeJSON(w, fs.questions)
	})
	// A {user_id} wildcard for the history route would conflict with the ws
	// route under net/http's pattern rules, so chat paths dispatch by hand.
	mux.HandleFunc("GET /api/v1/chat/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/chat/")
		if idText, ok := strings.CutPrefix(rest, "ws/"); ok {
			userID, _ := strconv.ParseInt(idText, 10, 64)
			fs.serveChatWS(w, r, userID)
			return
		}
		if strings.HasSuffix(rest, "/messages") {
			fs.mu.Lock()
			defer fs.mu.Unlock()
			fs.writeJSON(w, fs.messages)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /api/v1/qa/ws/{class_id}", func(w http.ResponseWriter, r *http.Request) {
		classID, _ := strconv.ParseInt(r.PathValue("class_id"), 10, 64)
		if r.URL.Query().Get("user_id") == "" {
			http.Error(w, "missing or invalid user_id", http.StatusBadRequest)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.qaConns[classID] = conn
		fs.mu.Unlock()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) serveChatWS(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.chatConns[userID] = conn
	fs.chatDials[userID]++
	fs.mu.Unlock()
	go fs.readChat(userID, conn)
}

// dropChat kills the server side of a user's chat transport.
func (fs *fakeServer) dropChat(userID int64) {
	fs.mu.Lock()
	conn := fs.chatConns[userID]
	fs.mu.Unlock()
	if conn == nil {
		fs.t.Fatalf("no chat connection for user %d", userID)
	}
	_ = conn.Close()
}

// chatDialCount reports how many times a user's chat endpoint was dialed.
func (fs *fakeServer) chatDialCount(userID int64) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.chatDials[userID]
}

func (fs *fakeServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fs.t.Errorf("fake server encode failed: %v", err)
	}
}

func (fs *fakeServer) readChat(userID int64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var send types.ChatSend
		if err := json.Unmarshal(data, &send); err != nil {
			continue
		}
		fs.mu.Lock()
		fs.received = append(fs.received, send)
		echo := fs.echoChat
		fs.nextID++
		id := fs.nextID
		fs.mu.Unlock()

		if echo {
			env, _ := types.MessageEnvelope(&types.DirectMessage{
				ID: id, SenderID: userID, ReceiverID: send.ReceiverID,
				Content: send.Content, Timestamp: time.Now(),
			})
			_ = conn.WriteJSON(env)
		}
	}
}

// pushChat writes a frame on the stored chat connection for userID.
func (fs *fakeServer) pushChat(userID int64, m *types.DirectMessage) {
	fs.mu.Lock()
	conn := fs.chatConns[userID]
	fs.mu.Unlock()
	if conn == nil {
		fs.t.Fatalf("no chat connection for user %d", userID)
	}
	env, err := types.MessageEnvelope(m)
	if err != nil {
		fs.t.Fatalf("building envelope: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		fs.t.Fatalf("pushing frame: %v", err)
	}
}

func (fs *fakeServer) receivedSends() []types.ChatSend {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]types.ChatSend, len(fs.received))
	copy(out, fs.received)
	return out
}

func newTestClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:          fs.srv.URL,
		UserID:           fs.user.ID,
		DisableReconnect: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestOpenChannelLoadsHistoryExactly(t *testing.T) {
	fs := newFakeServer(t)
	fs.messages = []*types.DirectMessage{
		{ID: 1, SenderID: 42, ReceiverID: 9, Content: "hello"},
		{ID: 2, SenderID: 9, ReceiverID: 42, Content: "hi"},
		{ID: 3, SenderID: 42, ReceiverID: 9, Content: "how are you"},
	}
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected the log to be exactly the history, got %d entries", len(entries))
	}
	for i, want := range []int64{1, 2, 3} {
		if entries[i].Message.ID != want {
			t.Errorf("entry %d: expected message %d, got %d", i, want, entries[i].Message.ID)
		}
	}
	if !c.IsConnected() {
		t.Error("expected the transport open after OpenChannel")
	}
}

func TestLiveFramesAppendAfterHistory(t *testing.T) {
	fs := newFakeServer(t)
	fs.messages = []*types.DirectMessage{{ID: 1, SenderID: 42, ReceiverID: 9, Content: "old"}}
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	fs.pushChat(9, &types.DirectMessage{ID: 2, SenderID: 42, ReceiverID: 9, Content: "new"})

	waitFor(t, func() bool { return len(c.Entries()) == 2 }, "expected the live frame appended")
	entries := c.Entries()
	if entries[0].Message.ID != 1 || entries[1].Message.ID != 2 {
		t.Errorf("expected history before live frames, got %+v", entries)
	}
}

func TestFramesForOtherConversationsDropped(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	// Frame for a conversation between two other users.
	fs.pushChat(9, &types.DirectMessage{ID: 2, SenderID: 7, ReceiverID: 99, Content: "noise"})
	// Relevant frame behind it proves the first was processed and dropped.
	fs.pushChat(9, &types.DirectMessage{ID: 3, SenderID: 42, ReceiverID: 9, Content: "real"})

	waitFor(t, func() bool { return len(c.Entries()) == 1 }, "expected only the relevant frame")
	if c.Entries()[0].Message.ID != 3 {
		t.Errorf("expected the relevant frame, got %+v", c.Entries())
	}
}

func TestSendOptimisticRoundTrip(t *testing.T) {
	fs := newFakeServer(t)
	fs.echoChat = true
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	localID, err := c.SendOptimistic(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("SendOptimistic failed: %v", err)
	}
	if localID == "" {
		t.Fatal("expected a provisional identity")
	}

	// Provisional entry visible before any confirmation.
	entries := c.Entries()
	if len(entries) != 1 || !entries[0].Provisional {
		t.Fatalf("expected one provisional entry immediately, got %+v", entries)
	}

	// The confirmed echo supersedes it: exactly one entry, now confirmed.
	waitFor(t, func() bool {
		es := c.Entries()
		return len(es) == 1 && !es[0].Provisional
	}, "expected the provisional entry superseded by the confirmed copy")

	entries = c.Entries()
	if entries[0].Message.Content != "hello there" {
		t.Errorf("unexpected confirmed entry %+v", entries[0])
	}

	sends := fs.receivedSends()
	if len(sends) != 1 || sends[0].ReceiverID != 42 || sends[0].Content != "hello there" {
		t.Errorf("unexpected wire sends %+v", sends)
	}
}

func TestSendWithoutChannelFails(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if _, err := c.SendOptimistic(context.Background(), "hi"); err != ErrNoChannel {
		t.Errorf("expected ErrNoChannel, got %v", err)
	}
}

func TestSendEmptyContentFails(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}
	if _, err := c.SendOptimistic(context.Background(), ""); err != types.ErrEmptyContent {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if len(c.Entries()) != 0 {
		t.Error("rejected send must not touch the log")
	}
}

func TestSendAnswerRequiresClassChannel(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}
	if _, err := c.SendAnswer(context.Background(), 1, "because"); err != ErrWrongChannel {
		t.Errorf("expected ErrWrongChannel, got %v", err)
	}
}

func TestCloseChannelIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	c.CloseChannel()
	c.CloseChannel() // second close is a no-op

	if c.IsConnected() {
		t.Error("expected the transport closed")
	}
	if !c.ActiveChannel().IsZero() {
		t.Error("expected no active channel")
	}
	if _, err := c.SendOptimistic(context.Background(), "hi"); err != ErrNoChannel {
		t.Errorf("expected sends rejected after close, got %v", err)
	}
}

func TestSwitchingChannelsReplacesLog(t *testing.T) {
	fs := newFakeServer(t)
	fs.messages = []*types.DirectMessage{{ID: 1, SenderID: 42, ReceiverID: 9, Content: "a"}}
	fs.questions = []*types.Question{{ID: 5, ClassID: 7, StudentID: 3, Content: "why?"}}
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}
	if err := c.OpenChannel(context.Background(), ClassChannel(7)); err != nil {
		t.Fatalf("switching channels failed: %v", err)
	}

	entries := c.Entries()
	if len(entries) != 1 || entries[0].Kind != types.KindNewQuestion {
		t.Fatalf("expected the class history only, got %+v", entries)
	}
	if !c.ActiveChannel().Equal(ClassChannel(7)) {
		t.Error("expected the class channel active")
	}
}

func TestHandshakeFailureLeavesClientUsable(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	// Take the server down between history fetch setup and dial by pointing
	// the client at a dead address instead.
	dead, err := New(Options{BaseURL: "http://127.0.0.1:1", UserID: 9, DisableReconnect: true,
		HandshakeTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer dead.Close()

	if err := dead.OpenChannel(context.Background(), DirectChannel(42)); err == nil {
		t.Fatal("expected OpenChannel to fail against a dead server")
	}
	if dead.IsConnected() {
		t.Error("expected the client disconnected after handshake failure")
	}

	// A healthy client still opens fine afterwards.
	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
	if _, err := c.SendOptimistic(context.Background(), "hi"); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestTransportLossMarksErrored(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	fs.dropChat(9)

	waitFor(t, func() bool { return c.State() == Errored }, "expected Errored after the transport died")
	if c.IsConnected() {
		t.Error("expected IsConnected false after transport loss")
	}
}

func TestReconnectAfterTransportLoss(t *testing.T) {
	fs := newFakeServer(t)
	fs.echoChat = true
	c, err := New(Options{
		BaseURL:                  fs.srv.URL,
		UserID:                   9,
		ReconnectInitialInterval: 20 * time.Millisecond,
		ReconnectMaxInterval:     100 * time.Millisecond,
		ReconnectMaxElapsedTime:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	fs.dropChat(9)

	waitFor(t, func() bool {
		return fs.chatDialCount(9) >= 2 && c.IsConnected()
	}, "expected the client to re-establish the transport")

	// The recovered transport carries traffic both ways.
	fs.pushChat(9, &types.DirectMessage{ID: 50, SenderID: 42, ReceiverID: 9, Content: "still here"})
	waitFor(t, func() bool { return len(c.Entries()) == 1 }, "expected a frame on the recovered transport")

	if _, err := c.SendOptimistic(context.Background(), "back again"); err != nil {
		t.Fatalf("SendOptimistic after reconnect failed: %v", err)
	}
	waitFor(t, func() bool {
		es := c.Entries()
		return len(es) == 2 && !es[1].Provisional
	}, "expected the post-reconnect send confirmed")
}

func TestSendFailureRollsBackProvisionalEntry(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	if err := c.OpenChannel(context.Background(), DirectChannel(42)); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	// Kill the transport under the client, then send before it notices.
	c.conn.close()

	if _, err := c.SendOptimistic(context.Background(), "doomed"); err == nil {
		t.Fatal("expected the send to fail on a closed transport")
	}
	if len(c.Entries()) != 0 {
		t.Errorf("expected the provisional entry rolled back, got %+v", c.Entries())
	}
}
