package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docSyncServer/backend/internal/cache"
	"docSyncServer/backend/internal/collab"
	"docSyncServer/backend/internal/entity"
)

// DefaultAllowOrigins 未配置来源时只放行本地开发前端
var DefaultAllowOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// originChecker 精确匹配配置的来源；"*" 放行全部
// 不带 Origin（或为 "null"）的非浏览器客户端直接放行
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		allowed = DefaultAllowOrigins
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// Authorizer 连接前校验 view 权限
type Authorizer interface {
	Authorize(ctx context.Context, docID string, userID uint64, required entity.Permission) (bool, error)
}

type Options struct {
	// 每个连接每秒允许的编辑数
	EditRate  float64
	EditBurst int

	// 为空时使用 DefaultAllowOrigins
	AllowOrigins []string
}

type Manager struct {
	upgrader  websocket.Upgrader
	svc       Broadcaster
	gate      Authorizer
	presence  cache.PresenceCache
	sem       *collab.SemaphoreControl
	log       *zap.Logger
	editRate  rate.Limit
	editBurst int
}

func NewManager(svc Broadcaster, gate Authorizer, presence cache.PresenceCache, sem *collab.SemaphoreControl, opt Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.EditRate <= 0 {
		opt.EditRate = 20
	}
	if opt.EditBurst <= 0 {
		opt.EditBurst = 40
	}
	return &Manager{
		upgrader:  websocket.Upgrader{CheckOrigin: originChecker(opt.AllowOrigins)},
		svc:       svc,
		gate:      gate,
		presence:  presence,
		sem:       sem,
		log:       log,
		editRate:  rate.Limit(opt.EditRate),
		editBurst: opt.EditBurst,
	}
}

// WebSocketConnect GET /collab/ws?docId=，需要 view 权限
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	docID := strings.TrimSpace(c.Query("docId"))
	if docID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ARGUMENT", "message": "missing docId"})
		return
	}
	ok, err := m.gate.Authorize(c.Request.Context(), docID, userID, entity.PermissionView)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, entity.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"code": entity.Code(err), "message": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"code": entity.ErrPermissionDenied.Error(), "message": "no access to document"})
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn("websocket_upgrade_failed", zap.Error(err), zap.String("origin", c.Request.Header.Get("Origin")))
		return
	}
	m.serve(c.Request.Context(), conn, docID, userID, username)
}

func (m *Manager) serve(parent context.Context, conn *websocket.Conn, docID string, userID uint64, username string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	wsConn := newConn(conn, docID, userID, username, m)
	defer wsConn.close()

	sub, err := m.svc.Subscribe(ctx, docID)
	if err != nil {
		_ = conn.WriteJSON(ServerMessage{Type: TypeError, DocID: docID, Code: entity.Code(err), Content: err.Error()})
		return
	}

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	writeDone := make(chan struct{})
	go func() {
		wsConn.writeLoop()
		close(writeDone)
	}()
	wsConn.send <- ServerMessage{Type: TypeWelcome, DocID: docID, Content: "subscribed"}

	var pumps sync.WaitGroup
	pumps.Add(1)
	go func() {
		defer pumps.Done()
		wsConn.pump(ctx, sub)
	}()

	if m.presence != nil {
		if err := m.presence.AddMember(ctx, docID, userID, username, presenceTTL); err != nil {
			wsConn.log.Warn("presence_add_failed", zap.Error(err))
		}
	}
	m.log.Info("ws_connected", zap.String("doc", docID), zap.Uint64("user", userID))

	// 阻塞至连接关闭
	wsConn.readLoop(ctx)

	sub.Close()
	cancel()
	pumps.Wait()
	close(wsConn.send)
	<-writeDone

	if m.presence != nil {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), time.Second)
		if err := m.presence.RemoveMember(rmCtx, docID, userID); err != nil {
			wsConn.log.Warn("presence_remove_failed", zap.Error(err))
		}
		rmCancel()
	}
	m.log.Info("ws_disconnected", zap.String("doc", docID), zap.Uint64("user", userID))
}
