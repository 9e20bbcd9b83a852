package realtime_sdk

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/workhive/realtime-sdk/message"
	"github.com/workhive/realtime-sdk/service"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// newTestEngine 直接组装引擎（绕开 NewEngine 的进程级单例），
// DB 用 go-sqlmock，WS 不挂真实连接。
func newTestEngine(t *testing.T) (*RealtimeEngine, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqldb, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		_ = sqldb.Close()
		t.Fatalf("gorm.Open: %v", err)
	}

	base := &service.Service{DB: db, TablePrefix: "wd_"}
	e := &RealtimeEngine{
		config:             &Config{DB: db, TablePrefix: "wd_"},
		RoomService:        service.NewRoomService(base),
		MsgService:         service.NewMessageService(base),
		ReadReceiptService: service.NewReadReceiptService(base),
		WsServer:           NewWsServer(nil),
	}
	e.bindWsHandlers()
	return e, mock, sqldb
}

// recvJSON 取一条下行消息并解成 map；没有消息时返回 nil
func recvJSON(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case b := <-c.send:
		var m map[string]interface{}
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("unmarshal downstream: %v (%s)", err, b)
		}
		return m
	default:
		return nil
	}
}

func dispatch(e *RealtimeEngine, c *Client, v interface{}) {
	b, _ := json.Marshal(v)
	e.WsServer.handleMessage(c, b)
}

func TestWsEvents_RequireIdentityFirst(t *testing.T) {
	e, _, sqldb := newTestEngine(t)
	defer sqldb.Close()

	c := newHubClient(e.WsServer, "anon")

	// 未声明身份的连接只放行 user-status
	dispatch(e, c, message.JoinReq{Type: message.WsTypeJoin, RoomID: 10})

	got := recvJSON(t, c)
	if got == nil || got["code"] != message.ErrUnauthorized {
		t.Fatalf("expected UNAUTHORIZED error, got %v", got)
	}
}

func TestWsEvents_UserStatusIdentityMismatch(t *testing.T) {
	e, _, sqldb := newTestEngine(t)
	defer sqldb.Close()

	// token 升级出来的身份是 5，却想声明成 6
	c := newHubClient(e.WsServer, "c")
	c.AuthUserID = 5

	dispatch(e, c, message.UserStatusReq{Type: message.WsTypeUserStatus, UserID: 6})
	got := recvJSON(t, c)
	if got == nil || got["code"] != message.ErrUnauthorized {
		t.Fatalf("expected UNAUTHORIZED error, got %v", got)
	}
	if e.WsServer.IsOnline(6) {
		t.Fatal("mismatched identity must not come online")
	}

	// 声明成自己：绑定成功
	dispatch(e, c, message.UserStatusReq{Type: message.WsTypeUserStatus, UserID: 5})
	if !e.WsServer.IsOnline(5) {
		t.Fatal("expected user 5 online")
	}
}

func TestWsEvents_JoinForbiddenForNonMember(t *testing.T) {
	e, mock, sqldb := newTestEngine(t)
	defer sqldb.Close()

	c := newHubClient(e.WsServer, "c")
	e.WsServer.BindUser(c, 1)

	// 房间存在，但用户不是在席成员
	mock.ExpectQuery("SELECT (.+) FROM `wd_room`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(uint64(10), "ops"))
	mock.ExpectQuery("SELECT count(.+) FROM `wd_room_member`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	dispatch(e, c, message.JoinReq{Type: message.WsTypeJoin, RoomID: 10})

	got := recvJSON(t, c)
	if got == nil || got["code"] != message.ErrForbidden {
		t.Fatalf("expected FORBIDDEN error, got %v", got)
	}
	if e.WsServer.InRoom(c, 10) {
		t.Fatal("forbidden join must not subscribe")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWsEvents_JoinSucceedsForMember(t *testing.T) {
	e, mock, sqldb := newTestEngine(t)
	defer sqldb.Close()

	c := newHubClient(e.WsServer, "c")
	other := newHubClient(e.WsServer, "other")
	e.WsServer.BindUser(c, 1)
	drainAll(c, other) // 清掉上线广播

	mock.ExpectQuery("SELECT (.+) FROM `wd_room`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(uint64(10), "ops"))
	mock.ExpectQuery("SELECT count(.+) FROM `wd_room_member`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dispatch(e, c, message.JoinReq{Type: message.WsTypeJoin, RoomID: 10})

	got := recvJSON(t, c)
	if got == nil || got["type"] != message.WsTypeJoined {
		t.Fatalf("expected joined ack, got %v", got)
	}
	if !e.WsServer.InRoom(c, 10) {
		t.Fatal("expected subscription")
	}
	// joined 只发给本人
	if m := recvJSON(t, other); m != nil {
		t.Fatalf("joined must not be broadcast, other got %v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWsEvents_MessageAckAndBroadcast(t *testing.T) {
	e, mock, sqldb := newTestEngine(t)
	defer sqldb.Close()

	sender := newHubClient(e.WsServer, "sender")
	peer := newHubClient(e.WsServer, "peer")
	outsider := newHubClient(e.WsServer, "outsider")
	e.WsServer.BindUser(sender, 1)
	e.WsServer.BindUser(peer, 2)
	e.WsServer.BindUser(outsider, 3)
	drainAll(sender, peer, outsider) // 清掉上线广播

	e.WsServer.JoinRoom(sender, 10)
	e.WsServer.JoinRoom(peer, 10)

	// 成员校验 + 落库 + 刷新房间活跃时间
	mock.ExpectQuery("SELECT count(.+) FROM `wd_room_member`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO `wd_message`").
		WillReturnResult(sqlmock.NewResult(55, 1))
	mock.ExpectExec("UPDATE `wd_room` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	dispatch(e, sender, message.SendReq{
		Type: message.WsTypeMessage, RoomID: 10, Body: "hello", TempID: "tmp-1",
	})

	// 发送者：ack 带 temp_id
	ack := recvJSON(t, sender)
	if ack == nil || ack["type"] != message.WsTypeMessage || ack["temp_id"] != "tmp-1" {
		t.Fatalf("expected ack with temp_id, got %v", ack)
	}

	// 房间内其他人：广播不带 temp_id
	bcast := recvJSON(t, peer)
	if bcast == nil || bcast["type"] != message.WsTypeMessage {
		t.Fatalf("expected broadcast, got %v", bcast)
	}
	if _, has := bcast["temp_id"]; has {
		t.Fatalf("broadcast must not carry temp_id: %v", bcast)
	}

	// 没订阅房间的连接什么都收不到
	if m := recvJSON(t, outsider); m != nil {
		t.Fatalf("outsider should receive nothing, got %v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWsEvents_MessageValidationNoSideEffects(t *testing.T) {
	e, mock, sqldb := newTestEngine(t)
	defer sqldb.Close()

	sender := newHubClient(e.WsServer, "sender")
	peer := newHubClient(e.WsServer, "peer")
	e.WsServer.BindUser(sender, 1)
	e.WsServer.BindUser(peer, 2)
	drainAll(sender, peer)

	e.WsServer.JoinRoom(sender, 10)
	e.WsServer.JoinRoom(peer, 10)

	// 成员校验过了，但正文是纯空白：校验失败，不落库、不广播
	mock.ExpectQuery("SELECT count(.+) FROM `wd_room_member`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dispatch(e, sender, message.SendReq{
		Type: message.WsTypeMessage, RoomID: 10, Body: "   ", TempID: "tmp-2",
	})

	got := recvJSON(t, sender)
	if got == nil || got["code"] != message.ErrMsgValidation || got["temp_id"] != "tmp-2" {
		t.Fatalf("expected MESSAGE_VALIDATION_FAILED with temp_id, got %v", got)
	}
	if m := recvJSON(t, peer); m != nil {
		t.Fatalf("validation failure must not broadcast, peer got %v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no insert may run: %v", err)
	}
}

func TestWsEvents_EditByNonOwnerIsSilentToRoom(t *testing.T) {
	e, mock, sqldb := newTestEngine(t)
	defer sqldb.Close()

	c := newHubClient(e.WsServer, "c")
	peer := newHubClient(e.WsServer, "peer")
	e.WsServer.BindUser(c, 1)
	e.WsServer.BindUser(peer, 2)
	drainAll(c, peer)
	e.WsServer.JoinRoom(c, 10)
	e.WsServer.JoinRoom(peer, 10)

	// 消息是用户 2 发的
	mock.ExpectQuery("SELECT (.+) FROM `wd_message`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "sender_id", "content"}).
			AddRow(uint64(5), uint64(10), uint64(2), "origin"))

	dispatch(e, c, message.EditReq{Type: message.WsTypeMsgEdit, RoomID: 10, MessageID: 5, Body: "tampered"})

	got := recvJSON(t, c)
	if got == nil || got["code"] != message.ErrEdit {
		t.Fatalf("expected EDIT_ERROR, got %v", got)
	}
	if m := recvJSON(t, peer); m != nil {
		t.Fatalf("failed edit must not broadcast, peer got %v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWsEvents_TypingIsRelayOnly(t *testing.T) {
	e, _, sqldb := newTestEngine(t)
	defer sqldb.Close()

	c := newHubClient(e.WsServer, "c")
	peer := newHubClient(e.WsServer, "peer")
	e.WsServer.BindUser(c, 1)
	e.WsServer.BindUser(peer, 2)
	drainAll(c, peer)
	e.WsServer.JoinRoom(c, 10)
	e.WsServer.JoinRoom(peer, 10)

	dispatch(e, c, message.TypingReq{Type: message.WsTypeTyping, RoomID: 10, IsTyping: true})

	got := recvJSON(t, peer)
	if got == nil || got["type"] != message.WsTypeTyping || got["is_typing"] != true {
		t.Fatalf("expected typing relay, got %v", got)
	}
	// 不回发给本人，也没有 ack
	if m := recvJSON(t, c); m != nil {
		t.Fatalf("typing must not echo to sender, got %v", m)
	}
}

func TestWsEvents_ReadReceiptWithoutMembershipIsSilent(t *testing.T) {
	e, mock, sqldb := newTestEngine(t)
	defer sqldb.Close()

	c := newHubClient(e.WsServer, "c")
	e.WsServer.BindUser(c, 1)
	drainAll(c)

	// 没有在席成员行：静默返回，不报错、不广播
	mock.ExpectQuery("SELECT (.+) FROM `wd_room_member`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	dispatch(e, c, message.ReadAckReq{Type: message.WsTypeReadAck, RoomID: 10, LastReadMsgID: 5})

	if m := recvJSON(t, c); m != nil {
		t.Fatalf("expected silence, got %v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

// drainAll 清空若干连接的下行缓冲
func drainAll(cs ...*Client) {
	for _, c := range cs {
	loop:
		for {
			select {
			case <-c.send:
			default:
				break loop
			}
		}
	}
}
