package ws

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"

	"docSyncServer/backend/internal/collab"
	"docSyncServer/backend/internal/share"
	"docSyncServer/backend/internal/store"
	"docSyncServer/backend/internal/version"
)

type testEnv struct {
	server *httptest.Server
	gate   *share.Gate
	svc    *collab.Service
}

// userId 直接从 query 里取，代替鉴权中间件
func newTestEnv(t *testing.T, opt Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := store.NewMemoryDirectory()
	dir.AddDocument("D1", 1)
	dir.AddUser(2)
	dir.AddUser(3)
	gate := share.NewGate(store.NewMemoryShareStore(), dir, dir, nil, nil)
	versions := version.NewService(store.NewMemoryVersionStore(), nil)
	svc := collab.NewService(gate, versions, collab.Options{})
	m := NewManager(svc, gate, nil, collab.NewSemaphoreControl(4), opt, nil)

	r := gin.New()
	r.GET("/collab/ws", func(c *gin.Context) {
		uid, _ := strconv.ParseUint(c.Query("uid"), 10, 64)
		c.Set("userId", uid)
		c.Set("username", "user"+c.Query("uid"))
		c.Next()
	}, m.WebSocketConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, gate: gate, svc: svc}
}

func (e *testEnv) dial(t *testing.T, docID string, uid uint64) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/collab/ws?docId=" + docID + "&uid=" + strconv.FormatUint(uid, 10)
	return websocket.DefaultDialer.Dial(u, nil)
}

func read(t *testing.T, c *websocket.Conn) ServerMessage {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg ServerMessage
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readUntil 读到指定类型的消息为止，返回途中看到的所有消息
func readUntil(t *testing.T, c *websocket.Conn, want ...string) map[string]ServerMessage {
	t.Helper()
	seen := make(map[string]ServerMessage)
	for {
		msg := read(t, c)
		seen[msg.Type] = msg
		done := true
		for _, w := range want {
			if _, ok := seen[w]; !ok {
				done = false
			}
		}
		if done {
			return seen
		}
	}
}

func TestConnectReceivesCurrentState(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _, err := env.dial(t, "D1", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	seen := readUntil(t, conn, TypeWelcome, TypeDocumentState)
	st := seen[TypeDocumentState].State
	if st == nil {
		t.Fatalf("missing state")
	}
	assert.Equal(t, st.DocID, "D1")
	assert.Equal(t, st.Content, "")
}

func TestEditIsBroadcastToOtherSubscribers(t *testing.T) {
	env := newTestEnv(t, Options{})
	editor, _, err := env.dial(t, "D1", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer editor.Close()
	viewer, _, err := env.dial(t, "D1", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer viewer.Close()
	readUntil(t, editor, TypeWelcome, TypeDocumentState)
	readUntil(t, viewer, TypeWelcome, TypeDocumentState)

	if err := editor.WriteJSON(ClientMessage{Type: TypeEdit, Content: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	seen := readUntil(t, editor, TypeEditApplied)
	applied := seen[TypeEditApplied]
	if applied.Version == nil {
		t.Fatalf("expected version in ack, warning=%q", applied.Warning)
	}
	assert.Equal(t, applied.Version.VersionNumber, 1)

	msg := read(t, viewer)
	assert.Equal(t, msg.Type, TypeDocumentState)
	assert.Equal(t, msg.State.Content, "hello")
	assert.Equal(t, msg.State.LastEditorID, uint64(1))
}

func TestPatchOpIsRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _, err := env.dial(t, "D1", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, TypeWelcome, TypeDocumentState)

	if err := conn.WriteJSON(ClientMessage{Type: TypeEdit, Op: "patch", Content: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := read(t, conn)
	assert.Equal(t, msg.Type, TypeError)
	assert.Equal(t, msg.Code, "INVALID_ARGUMENT")
}

func TestViewerCannotEdit(t *testing.T) {
	env := newTestEnv(t, Options{})
	if _, _, err := env.gate.Share(t.Context(), "D1", 2, "view"); err != nil {
		t.Fatalf("Share error: %v", err)
	}
	conn, _, err := env.dial(t, "D1", 2)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, TypeWelcome, TypeDocumentState)

	if err := conn.WriteJSON(ClientMessage{Type: TypeEdit, Content: "nope"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := read(t, conn)
	assert.Equal(t, msg.Type, TypeError)
	assert.Equal(t, msg.Code, "PERMISSION_DENIED")
}

func TestConnectWithoutAccessIsForbidden(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, resp, err := env.dial(t, "D1", 3)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil {
		t.Fatalf("expected http response, err=%v", err)
	}
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)

	_, resp, err = env.dial(t, "missing", 1)
	if err == nil || resp == nil {
		t.Fatalf("expected handshake failure, err=%v", err)
	}
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestEditRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{EditRate: 0.001, EditBurst: 1})
	conn, _, err := env.dial(t, "D1", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, TypeWelcome, TypeDocumentState)

	for _, content := range []string{"a", "b"} {
		if err := conn.WriteJSON(ClientMessage{Type: TypeEdit, Content: content}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	seen := readUntil(t, conn, TypeEditApplied, TypeError)
	assert.Equal(t, seen[TypeError].Code, "RATE_LIMITED")
}

func TestHeartbeatWithoutPresence(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn, _, err := env.dial(t, "D1", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, TypeWelcome, TypeDocumentState)

	if err := conn.WriteJSON(ClientMessage{Type: TypeHeartbeat}); err != nil {
		t.Fatalf("write: %v", err)
	}
	assert.Equal(t, read(t, conn).Type, TypeFeedback)

	if err := conn.WriteJSON(ClientMessage{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	assert.Equal(t, read(t, conn).Type, TypeIgnored)
}

func TestOriginCheckerMatchesExactOrigins(t *testing.T) {
	check := originChecker([]string{"https://docs.example.com/", "http://localhost:3000"})
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"null", true},
		{"https://docs.example.com", true},
		{"HTTPS://DOCS.EXAMPLE.COM", true},
		{"http://localhost:3000", true},
		{"http://localhost:3001", false},
		{"http://localhost", false},
		{"http://localhost.evil.com", false},
		{"https://docs.example.com.evil.com", false},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/collab/ws", nil)
		if c.origin != "" {
			req.Header.Set("Origin", c.origin)
		}
		if got := check(req); got != c.want {
			t.Fatalf("origin %q: got %v, want %v", c.origin, got, c.want)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/collab/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.Equal(t, originChecker([]string{"*"})(req), true)
	assert.Equal(t, originChecker(nil)(req), false)
}

func TestUpgradeRejectsUnlistedOrigin(t *testing.T) {
	env := newTestEnv(t, Options{AllowOrigins: []string{"https://docs.example.com"}})
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/collab/ws?docId=D1&uid=1"

	header := http.Header{}
	header.Set("Origin", "https://docs.example.com.evil.com")
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)

	header.Set("Origin", "https://docs.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	_ = conn.Close()
}
