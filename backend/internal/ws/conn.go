package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docSyncServer/backend/internal/cache"
	"docSyncServer/backend/internal/collab"
	"docSyncServer/backend/internal/entity"
)

const (
	presenceTTL = 600 * time.Second
	editTimeout = 2 * time.Second
	writeWait   = 10 * time.Second
)

// Broadcaster ws 连接只需要订阅和编辑
type Broadcaster interface {
	Subscribe(ctx context.Context, docID string) (*collab.Subscription, error)
	Edit(ctx context.Context, docID string, authorID uint64, content string) (collab.EditResult, error)
}

// Conn 一条 WebSocket 连接只对应一个文档的订阅
type Conn struct {
	ws       *websocket.Conn
	docID    string
	userID   uint64
	username string

	send chan ServerMessage

	svc      Broadcaster
	presence cache.PresenceCache
	// 信号量控制同时执行中的编辑数
	sem     *collab.SemaphoreControl
	limiter *rate.Limiter
	log     *zap.Logger

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, docID string, userID uint64, username string, m *Manager) *Conn {
	return &Conn{
		ws:       ws,
		docID:    docID,
		userID:   userID,
		username: username,
		send:     make(chan ServerMessage, 32),
		svc:      m.svc,
		presence: m.presence,
		sem:      m.sem,
		limiter:  rate.NewLimiter(m.editRate, m.editBurst),
		log:      m.log.With(zap.String("doc", docID), zap.Uint64("user", userID)),
	}
}

// enqueue 队列满了就丢弃，只用于应答类消息
func (c *Conn) enqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.log.Debug("ws_send_queue_full", zap.String("type", msg.Type))
	}
}

func (c *Conn) sendError(err error) {
	c.enqueue(ServerMessage{Type: TypeError, DocID: c.docID, Code: entity.Code(err), Content: err.Error()})
}

// pump 把订阅流转发到写队列，订阅结束时返回
func (c *Conn) pump(ctx context.Context, sub *collab.Subscription) {
	for st := range sub.C() {
		select {
		case c.send <- ServerMessage{Type: TypeDocumentState, DocID: st.DocID, State: &st}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) handleEdit(ctx context.Context, msg ClientMessage) {
	if msg.DocID != "" && msg.DocID != c.docID {
		c.sendError(fmt.Errorf("%w: connection is bound to document %s", entity.ErrInvalidArgument, c.docID))
		return
	}
	if _, err := collab.ParseOp(msg.Op); err != nil {
		c.sendError(err)
		return
	}
	if !c.limiter.Allow() {
		c.enqueue(ServerMessage{Type: TypeError, DocID: c.docID, Code: "RATE_LIMITED", Content: "too many edits"})
		return
	}

	editCtx, cancel := context.WithTimeout(ctx, editTimeout)
	defer cancel()
	if c.sem != nil {
		if err := c.sem.Acquire(editCtx); err != nil {
			c.sendError(err)
			return
		}
		defer c.sem.Release()
	}

	res, err := c.svc.Edit(editCtx, c.docID, c.userID, msg.Content)
	if err != nil {
		c.sendError(err)
		return
	}
	c.enqueue(ServerMessage{
		Type:    TypeEditApplied,
		DocID:   c.docID,
		State:   &res.State,
		Version: res.Version,
		Warning: res.Warning,
	})
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	if c.presence == nil {
		c.enqueue(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})
		return
	}
	if err := c.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
		c.log.Warn("presence_add_failed", zap.Error(err))
	}
	c.enqueue(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})
}

func (c *Conn) handleShowAliveMembers(ctx context.Context) {
	if c.presence == nil {
		c.enqueue(ServerMessage{Type: TypeShowAliveMembers, DocID: c.docID, Members: []PresenceMember{}})
		return
	}
	members, err := c.presence.GetAliveMembersWithNames(ctx, c.docID)
	if err != nil {
		c.log.Warn("presence_list_failed", zap.Error(err))
	}
	// cache.PresenceMember 和 ws.PresenceMember 是两个不同的类型
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	c.enqueue(ServerMessage{Type: TypeShowAliveMembers, DocID: c.docID, Members: out})
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("ws_read_failed", zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case TypeEdit:
			c.handleEdit(ctx, msg)
		case TypeHeartbeat:
			c.handleHeartbeat(ctx)
		case TypeShowAliveMembers:
			c.handleShowAliveMembers(ctx)
		default:
			c.enqueue(ServerMessage{Type: TypeIgnored, Content: "Unknown message type"})
		}
	}
}

// writeLoop 持续消费写队列；写失败后关闭底层连接让 readLoop 退出，但继续排空队列
func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(msg); err != nil {
			c.close()
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { _ = c.ws.Close() })
}
