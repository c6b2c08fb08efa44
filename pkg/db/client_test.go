package db

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestRetryRetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnPermanentErrors(t *testing.T) {
	attempts := 0
	sentinel := errors.New("record not found")
	err := Retry(context.Background(), func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{driver.ErrBadConn, true},
		{&pgconn.PgError{Code: "40001"}, true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "08006"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "ux_debt_order"}, "ux_debt_order") {
		t.Fatal("expected pg unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: debt_records.order_ref"), "") {
		t.Fatal("expected sqlite unique violation")
	}
	if IsUniqueViolation(errors.New("other"), "") {
		t.Fatal("unexpected match")
	}
}

func TestGormLoggerReportsFailuresAndSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	gl := newGormLogger(logg).(*gormLogger)
	gl.slow = time.Millisecond
	trace := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), trace, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found should be silent: %s", buf.String())
	}

	gl.Trace(context.Background(), time.Now().Add(-time.Second), trace, nil)
	if !strings.Contains(buf.String(), "slow sql statement") {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}

	buf.Reset()
	gl.Trace(context.Background(), time.Now(), trace, errors.New("syntax error"))
	if !strings.Contains(buf.String(), "sql statement failed") {
		t.Fatalf("expected failure warning, got %s", buf.String())
	}

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), trace, errors.New("x"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should not log: %s", buf.String())
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{}, true, nil); err == nil {
		t.Fatal("expected dsn error")
	}
}

func TestNewOpensSQLite(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{DSN: "file:newopen?mode=memory&cache=shared"}, true, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
	if client.Dialect() != "sqlite" {
		t.Fatalf("unexpected dialect %q", client.Dialect())
	}
}
