package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRoomService_IsActiveMember(t *testing.T) {
	gormDB, mock, sqlDB := newMockDB(t)
	defer sqlDB.Close()

	rs := NewRoomService(&Service{DB: gormDB, TablePrefix: "wd_"})

	// 在席成员：count = 1
	mock.ExpectQuery("SELECT count(.+) FROM `wd_room_member`").
		WithArgs(uint64(10), uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := rs.IsActiveMember(10, 1)
	if err != nil {
		t.Fatalf("IsActiveMember: %v", err)
	}
	if !ok {
		t.Fatal("expected active member")
	}

	// 退过房（left_at 非 NULL 被 where 排除）：count = 0
	mock.ExpectQuery("SELECT count(.+) FROM `wd_room_member`").
		WithArgs(uint64(10), uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err = rs.IsActiveMember(10, 2)
	if err != nil {
		t.Fatalf("IsActiveMember: %v", err)
	}
	if ok {
		t.Fatal("expected inactive member")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRoomService_RemoveMember_Idempotent(t *testing.T) {
	gormDB, mock, sqlDB := newMockDB(t)
	defer sqlDB.Close()

	rs := NewRoomService(&Service{DB: gormDB, TablePrefix: "wd_"})

	// 第一次：命中一行
	mock.ExpectExec("UPDATE `wd_room_member` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := rs.RemoveMember(10, 1); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	// 第二次：already left，0 行命中也不报错
	mock.ExpectExec("UPDATE `wd_room_member` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := rs.RemoveMember(10, 1); err != nil {
		t.Fatalf("RemoveMember second call: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRoomService_AddMember_Rejoin(t *testing.T) {
	gormDB, mock, sqlDB := newMockDB(t)
	defer sqlDB.Close()

	rs := NewRoomService(&Service{DB: gormDB, TablePrefix: "wd_"})

	// 有历史行且 left_at 非空：清掉 left_at 复位在席
	left := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM `wd_room_member`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "workspace_user_id", "left_at"}).
			AddRow(uint64(5), uint64(10), uint64(1), left))
	mock.ExpectExec("UPDATE `wd_room_member` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := rs.AddMember(10, 1); err != nil {
		t.Fatalf("AddMember rejoin: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
