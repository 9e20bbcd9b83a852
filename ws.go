package realtime_sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/workhive/realtime-sdk/message"
)

const (
	// Time 写入超时时间
	writeWait = 10 * time.Second

	// Time pong超时时间
	pongWait = 60 * time.Second

	// Send 对应的ping 必须小于pong
	pingPeriod = (pongWait * 9) / 10

	// Maximum 对等端允许消息大小（正文上限 4000 字符 + JSON 包装）
	maxMessageSize = 32 * 1024

	// presenceTTL Redis 在线镜像的过期时间
	presenceTTL = 5 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for SDK
	},
}

// Client ws和hub的连接
// 一个 Client 对应一个具体 websocket 连接；同一用户可以有多个连接（多设备）。
type Client struct {
	hub *WsServer

	// 🔗链接
	conn *websocket.Conn

	// 消息缓冲区
	send chan []byte

	// SessionID 连接 ID（每个连接唯一）
	SessionID string

	// AuthUserID 升级时从 token 解析出来的身份（0=匿名升级）
	AuthUserID uint64

	// UserID 通过 user-status 声明后的身份；0 表示还没声明，
	// 声明前除 user-status 外的房间操作都会被拒。
	UserID uint64

	// closed 连接已从 hub 摘除，send 通道已关。由 hub.mu 保护：
	// 广播方在同一把锁下先看这个标志，再决定投递。
	closed bool
}

type WsServer struct {
	clients map[*Client]bool

	// 用户ID -> 该用户所有已声明身份的连接（支持多设备）。
	// 和 Client.UserID 必须在同一把锁下一起改，避免“半在线”。
	userClients map[uint64][]*Client

	// 房间订阅组：roomID -> 订阅的连接
	rooms map[uint64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// rdb 在线状态镜像（可选）：wd:online:{uid}，带 TTL，
	// 只给其他服务读，上下线广播的判定始终以本进程 map 为准。
	rdb *redis.Client

	// 回调处理消息
	onMessage func(client *Client, msg []byte)
}

func NewWsServer(rdb *redis.Client) *WsServer {
	return &WsServer{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		userClients: make(map[uint64][]*Client),
		rooms:       make(map[uint64]map[*Client]bool),
		rdb:         rdb,
	}
}

func (h *WsServer) Run() {
	refreshTicker := time.NewTicker(time.Minute)
	defer refreshTicker.Stop()

	for {
		select {
		case <-refreshTicker.C:
			// 给在线用户的 Redis 镜像续期
			h.mu.RLock()
			uids := make([]uint64, 0, len(h.userClients))
			for uid := range h.userClients {
				uids = append(uids, uid)
			}
			h.mu.RUnlock()
			for _, uid := range uids {
				h.presenceSet(uid)
			}

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// removeClient 断开清理：订阅组、presence 两张 map 一起改。
// 该用户最后一个连接断开时才广播 user-offline，中间断开不广播。
func (h *WsServer) removeClient(client *Client) {
	var offlineUID uint64

	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	close(client.send)

	for roomID, subs := range h.rooms {
		if subs[client] {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	if client.UserID != 0 {
		conns := h.userClients[client.UserID]
		for i, c := range conns {
			if c == client {
				h.userClients[client.UserID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.userClients[client.UserID]) == 0 {
			delete(h.userClients, client.UserID)
			offlineUID = client.UserID
		}
	}
	h.mu.Unlock()

	if offlineUID != 0 {
		h.presenceDel(offlineUID)
		h.broadcastPresence(message.WsTypeUserOffline, offlineUID)
	}
}

// BindUser 声明身份（user-status）。
// 同一连接重复声明是覆盖不是叠加；用户第一个连接上来时广播 user-online。
// 覆盖导致旧身份连接数清零时，和断开一样广播 user-offline 并清 Redis 镜像。
func (h *WsServer) BindUser(client *Client, userID uint64) {
	var onlineUID, offlineUID uint64

	h.mu.Lock()
	if client.UserID == userID {
		h.mu.Unlock()
		return
	}

	// 先把旧身份摘掉（覆盖语义）
	if client.UserID != 0 {
		conns := h.userClients[client.UserID]
		for i, c := range conns {
			if c == client {
				h.userClients[client.UserID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.userClients[client.UserID]) == 0 {
			delete(h.userClients, client.UserID)
			offlineUID = client.UserID
		}
	}

	client.UserID = userID
	if len(h.userClients[userID]) == 0 {
		onlineUID = userID
	}
	h.userClients[userID] = append(h.userClients[userID], client)
	h.mu.Unlock()

	if offlineUID != 0 {
		h.presenceDel(offlineUID)
		h.broadcastPresence(message.WsTypeUserOffline, offlineUID)
	}
	if onlineUID != 0 {
		h.presenceSet(onlineUID)
		h.broadcastPresence(message.WsTypeUserOnline, onlineUID)
	}
}

// JoinRoom 把连接订阅进房间广播组（准入校验在上层做完）
func (h *WsServer) JoinRoom(client *Client, roomID uint64) {
	h.mu.Lock()
	subs := h.rooms[roomID]
	if subs == nil {
		subs = make(map[*Client]bool)
		h.rooms[roomID] = subs
	}
	subs[client] = true
	h.mu.Unlock()
}

// LeaveRoom 退订。没订阅过就是 no-op，幂等。
func (h *WsServer) LeaveRoom(client *Client, roomID uint64) {
	h.mu.Lock()
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}

// InRoom 连接是否已订阅该房间
func (h *WsServer) InRoom(client *Client, roomID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs, ok := h.rooms[roomID]
	return ok && subs[client]
}

// sendTo 单连接投递，缓冲满直接丢，绝不阻塞事件循环。
// 广播方快照目标后锁已释放，目标可能正被 removeClient 摘除；
// 这里在 hub 锁下复查 closed，杜绝向已关闭通道发送。
func (h *WsServer) sendTo(client *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return
	}
	select {
	case client.send <- msg:
	default:
		// 丢弃避免阻塞
	}
}

// SendToUser 发送消息到用户的全部连接
func (h *WsServer) SendToUser(userID uint64, msg []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.userClients[userID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		h.sendTo(client, msg)
	}
}

// SendToRoom 广播到房间订阅组，exclude 不为空时跳过该连接（比如发送者）
func (h *WsServer) SendToRoom(roomID uint64, exclude *Client, msg []byte) {
	h.mu.RLock()
	subs := h.rooms[roomID]
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendTo(c, msg)
	}
}

// IsOnline 用户是否至少有一个已声明身份的连接
func (h *WsServer) IsOnline(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// broadcastPresence 上下线事件发给除本人外的所有连接
func (h *WsServer) broadcastPresence(event string, userID uint64) {
	b, _ := json.Marshal(message.PresenceResp{Type: event, UserID: userID})

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.UserID == userID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendTo(c, b)
	}
}

func (h *WsServer) presenceKey(userID uint64) string {
	return fmt.Sprintf("wd:online:%d", userID)
}

func (h *WsServer) presenceSet(userID uint64) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.rdb.Set(ctx, h.presenceKey(userID), "1", presenceTTL).Err(); err != nil {
		log.Printf("presence set failed: %v", err)
	}
}

func (h *WsServer) presenceDel(userID uint64) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.rdb.Del(ctx, h.presenceKey(userID)).Err(); err != nil {
		log.Printf("presence del failed: %v", err)
	}
}

func (h *WsServer) handleMessage(client *Client, msg []byte) {
	if h.onMessage != nil {
		h.onMessage(client, msg)
	}
}

func (h *WsServer) SetOnMessage(fn func(client *Client, msg []byte)) {
	h.onMessage = fn
}

// readPump 将消息从client (websocket 连接) 到hub管理。
// 同一连接上的事件严格串行：上一条处理完（包括落库）才读下一条；
// 不同连接之间自然交错。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("readPump error: %v", err)
			}
			break
		}
		c.hub.handleMessage(c, msg)
	}
}

// writePump 将消息从hub管理写到具体的client (websocket 连接)。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(msg)

			// 一次性写掉管道里剩余的消息，减少 syscall
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS 处理ws的请求。authUserID 为升级前解析出的身份（0=匿名）。
// presence 注册不在这里发生：连接要发 user-status 声明身份才算上线。
func (h *WsServer) ServeWS(w http.ResponseWriter, r *http.Request, authUserID uint64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		SessionID:  uuid.New().String(),
		AuthUserID: authUserID,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
