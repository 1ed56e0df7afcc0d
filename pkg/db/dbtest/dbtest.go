// Package dbtest opens throwaway SQLite databases migrated with the payout models.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
)

// Open returns an isolated in-memory database with every payout table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.PayoutInvoice{},
		&models.PayoutAdjustment{},
		&models.Voucher{},
		&models.VoucherRefundRequest{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
		&models.Notification{},
	))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// Shared-cache in-memory databases lock whole tables across connections.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return conn
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
