// Package testdb opens isolated sqlite databases carrying the settlement schema
// for package tests.
package testdb

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'customer',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		sizes TEXT NOT NULL DEFAULT '{}',
		colors TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE inventory_items (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		variant_key TEXT NOT NULL DEFAULT '',
		available_qty INTEGER NOT NULL DEFAULT 0 CHECK (available_qty >= 0),
		reserved_qty INTEGER NOT NULL DEFAULT 0 CHECK (reserved_qty >= 0),
		updated_at DATETIME,
		UNIQUE (product_id, variant_key)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		tracking_number TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		tax TEXT NOT NULL,
		shipping TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		shipping_address TEXT NOT NULL,
		billing_address TEXT,
		notes TEXT,
		shipped_at DATETIME,
		delivered_at DATETIME,
		canceled_at DATETIME,
		estimated_delivery_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		size TEXT,
		color TEXT,
		variant_key TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		line_total TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		method TEXT NOT NULL,
		transaction_id TEXT NOT NULL UNIQUE,
		external_ref TEXT UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		amount TEXT NOT NULL,
		failure_reason TEXT,
		redirect_url TEXT,
		raw_response BLOB,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		order_id TEXT,
		payload BLOB,
		read_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh in-memory database. The pool is pinned to a single
// connection so concurrent transactions serialize deterministically.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		tb.Fatalf("sql db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			tb.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
