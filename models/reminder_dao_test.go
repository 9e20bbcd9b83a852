package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
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
	return db, mock, sqldb
}

func TestReminderDAO_FindDuePage_ExcludesTerminalRows(t *testing.T) {
	gormDB, mock, sqlDB := newMockDB(t)
	defer sqlDB.Close()

	dao := NewReminderDAO(gormDB)
	now := time.Now()

	// 只取 due_date <= now、未通知、PENDING；FAILED/COMPLETED 被 status 条件天然排除
	mock.ExpectQuery("SELECT (.+) FROM `wd_reminder` WHERE due_date <= (.+) AND notified = (.+) AND status = (.+) ORDER BY due_date ASC, id ASC").
		WithArgs(now, false, ReminderStatusPending, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status"}).
			AddRow(uint64(1), "a", ReminderStatusPending).
			AddRow(uint64(2), "b", ReminderStatusPending))

	rows, err := dao.FindDuePage(now, 2, 0, time.Time{}, 0)
	if err != nil {
		t.Fatalf("FindDuePage: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 1 {
		t.Fatalf("unexpected page: %+v", rows)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestReminderDAO_FindDuePage_CursorContinuation(t *testing.T) {
	gormDB, mock, sqlDB := newMockDB(t)
	defer sqlDB.Close()

	dao := NewReminderDAO(gormDB)
	now := time.Now()
	afterDue := now.Add(-time.Hour)

	// 第二页起带 (due_date, id) 游标，不用 OFFSET：
	// 已处理的行掉出过滤条件也不会让后续页跳行
	mock.ExpectQuery("SELECT (.+) FROM `wd_reminder` WHERE due_date <= (.+) AND \\(due_date > (.+) OR \\(due_date = (.+) AND id > (.+)\\)\\) ORDER BY due_date ASC, id ASC").
		WithArgs(now, false, ReminderStatusPending, afterDue, afterDue, uint64(2), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status"}).
			AddRow(uint64(3), "c", ReminderStatusPending))

	rows, err := dao.FindDuePage(now, 2, 0, afterDue, 2)
	if err != nil {
		t.Fatalf("FindDuePage: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 3 {
		t.Fatalf("unexpected page: %+v", rows)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestReminderDAO_BumpRetry_EscalatesToFailed(t *testing.T) {
	gormDB, mock, sqlDB := newMockDB(t)
	defer sqlDB.Close()

	dao := NewReminderDAO(gormDB)
	now := time.Now()

	// 第 1 次失败：只记 retry_count/last_retry（外加 updated_at）
	mock.ExpectExec("UPDATE `wd_reminder` SET").
		WithArgs(now, 1, sqlmock.AnyArg(), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := dao.BumpRetry(5, 0, now); err != nil {
		t.Fatalf("BumpRetry: %v", err)
	}

	// 第 3 次失败：到阈值，同一条 UPDATE 里置 FAILED
	mock.ExpectExec("UPDATE `wd_reminder` SET").
		WithArgs(now, 3, ReminderStatusFailed, sqlmock.AnyArg(), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := dao.BumpRetry(5, 2, now); err != nil {
		t.Fatalf("BumpRetry at threshold: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
