package realtime_sdk

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/workhive/realtime-sdk/message"
)

// newHubClient 造一个不挂真实 websocket 连接的 Client。
// hub 的 map 操作都不碰 conn，send 用带缓冲的 channel 接广播即可。
func newHubClient(h *WsServer, session string) *Client {
	c := &Client{hub: h, send: make(chan []byte, 16), SessionID: session}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

// drainPresence 把 client 收到的上下线事件全部取出来
func drainPresence(t *testing.T, c *Client) []message.PresenceResp {
	t.Helper()
	var out []message.PresenceResp
	for {
		select {
		case b := <-c.send:
			var p message.PresenceResp
			if err := json.Unmarshal(b, &p); err != nil {
				t.Fatalf("unmarshal presence: %v", err)
			}
			if p.Type == message.WsTypeUserOnline || p.Type == message.WsTypeUserOffline {
				out = append(out, p)
			}
		default:
			return out
		}
	}
}

func TestPresence_ExactlyOnceAcrossDevices(t *testing.T) {
	h := NewWsServer(nil)

	observer := newHubClient(h, "observer")
	h.BindUser(observer, 99)
	drainPresence(t, observer) // 清掉自己上线前后的噪音（本人不收自己的事件，这里应为空）

	// 用户 7 两个设备
	c1 := newHubClient(h, "c1")
	c2 := newHubClient(h, "c2")

	// 第一个连接声明身份：恰好一次 user-online
	h.BindUser(c1, 7)
	got := drainPresence(t, observer)
	if len(got) != 1 || got[0].Type != message.WsTypeUserOnline || got[0].UserID != 7 {
		t.Fatalf("expected single user-online for 7, got %+v", got)
	}

	// 第二个设备上来：不再广播
	h.BindUser(c2, 7)
	if got := drainPresence(t, observer); len(got) != 0 {
		t.Fatalf("second device must not re-announce, got %+v", got)
	}

	// 第一个设备断开：还有连接在，不广播下线
	h.removeClient(c1)
	if got := drainPresence(t, observer); len(got) != 0 {
		t.Fatalf("offline must wait for last device, got %+v", got)
	}
	if !h.IsOnline(7) {
		t.Fatal("user 7 should still be online")
	}

	// 最后一个断开：恰好一次 user-offline
	h.removeClient(c2)
	got = drainPresence(t, observer)
	if len(got) != 1 || got[0].Type != message.WsTypeUserOffline || got[0].UserID != 7 {
		t.Fatalf("expected single user-offline for 7, got %+v", got)
	}
	if h.IsOnline(7) {
		t.Fatal("user 7 should be offline")
	}
}

func TestPresence_RemoveClientIdempotent(t *testing.T) {
	h := NewWsServer(nil)

	c := newHubClient(h, "c")
	h.BindUser(c, 7)

	h.removeClient(c)
	// 二次移除：已经不在 clients 里，直接返回，不能 panic/重复广播
	h.removeClient(c)

	if h.IsOnline(7) {
		t.Fatal("user 7 should be offline")
	}
}

func TestBindUser_OverwriteIdentity(t *testing.T) {
	h := NewWsServer(nil)

	observer := newHubClient(h, "observer")
	h.BindUser(observer, 99)

	c := newHubClient(h, "c")
	h.BindUser(c, 7)
	drainPresence(t, observer) // 清掉 user-online 7

	// 同一连接重新声明：覆盖不是叠加。
	// 旧身份连接数因此清零：先广播 user-offline 7，再 user-online 8
	h.BindUser(c, 8)

	got := drainPresence(t, observer)
	if len(got) != 2 ||
		got[0].Type != message.WsTypeUserOffline || got[0].UserID != 7 ||
		got[1].Type != message.WsTypeUserOnline || got[1].UserID != 8 {
		t.Fatalf("expected offline 7 then online 8, got %+v", got)
	}

	if h.IsOnline(7) {
		t.Fatal("old identity should be dropped")
	}
	if !h.IsOnline(8) {
		t.Fatal("new identity should be online")
	}
	if c.UserID != 8 {
		t.Fatalf("client user id = %d, want 8", c.UserID)
	}

	// 重复声明同一身份：no-op
	h.BindUser(c, 8)
	h.mu.RLock()
	n := len(h.userClients[8])
	h.mu.RUnlock()
	if n != 1 {
		t.Fatalf("re-declaring same identity must not duplicate, got %d conns", n)
	}
}

func TestRooms_JoinLeaveIdempotent(t *testing.T) {
	h := NewWsServer(nil)
	c := newHubClient(h, "c")

	h.JoinRoom(c, 10)
	h.JoinRoom(c, 10)
	if !h.InRoom(c, 10) {
		t.Fatal("expected subscribed")
	}

	h.LeaveRoom(c, 10)
	if h.InRoom(c, 10) {
		t.Fatal("expected unsubscribed")
	}
	// 再退一次、退没订阅过的房：都是 no-op
	h.LeaveRoom(c, 10)
	h.LeaveRoom(c, 999)
}

func TestSendToRoom_ExcludesSender(t *testing.T) {
	h := NewWsServer(nil)

	c1 := newHubClient(h, "c1")
	c2 := newHubClient(h, "c2")
	c3 := newHubClient(h, "c3")
	outsider := newHubClient(h, "outsider")

	for _, c := range []*Client{c1, c2, c3} {
		h.JoinRoom(c, 10)
	}

	h.SendToRoom(10, c1, []byte("hello"))

	for name, c := range map[string]*Client{"c2": c2, "c3": c3} {
		select {
		case b := <-c.send:
			if string(b) != "hello" {
				t.Fatalf("%s got %q", name, b)
			}
		default:
			t.Fatalf("%s should have received the broadcast", name)
		}
	}
	select {
	case <-c1.send:
		t.Fatal("sender must be excluded from the broadcast")
	default:
	}
	select {
	case <-outsider.send:
		t.Fatal("non-subscriber must not receive room traffic")
	default:
	}
}

func TestSendToUser_MultiDevice(t *testing.T) {
	h := NewWsServer(nil)

	c1 := newHubClient(h, "c1")
	c2 := newHubClient(h, "c2")
	h.BindUser(c1, 7)
	h.BindUser(c2, 7)

	h.SendToUser(7, []byte("ping"))

	for name, c := range map[string]*Client{"c1": c1, "c2": c2} {
		select {
		case b := <-c.send:
			if string(b) != "ping" {
				t.Fatalf("%s got %q", name, b)
			}
		default:
			t.Fatalf("%s should have received the message", name)
		}
	}
}

func TestSendTo_RemovedClientIsDropped(t *testing.T) {
	h := NewWsServer(nil)

	c := newHubClient(h, "c")
	h.JoinRoom(c, 10)
	h.removeClient(c)

	// send 通道已关：投递必须被丢弃而不是 panic
	h.sendTo(c, []byte("late"))
	h.SendToRoom(10, nil, []byte("late"))
	h.SendToUser(c.UserID, []byte("late"))
}

func TestSendToRoom_ConcurrentWithDisconnect(t *testing.T) {
	h := NewWsServer(nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// 持续向房间广播
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.SendToRoom(1, nil, []byte("m"))
				}
			}
		}()
	}

	// 同时不断有连接加入又断开
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		c := newHubClient(h, "churn")
		h.JoinRoom(c, 1)
		h.removeClient(c)
	}
	close(stop)
	wg.Wait()
}

func TestRemoveClient_CleansRoomSubscriptions(t *testing.T) {
	h := NewWsServer(nil)

	c := newHubClient(h, "c")
	h.JoinRoom(c, 10)
	h.JoinRoom(c, 11)

	h.removeClient(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.rooms) != 0 {
		t.Fatalf("empty subscription groups must be dropped, got %d", len(h.rooms))
	}
}
