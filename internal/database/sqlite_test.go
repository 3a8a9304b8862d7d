package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOpenMemoryMigratesSchema(t *testing.T) {
	conn, err := OpenMemory()
	require.NoError(t, err)

	for _, table := range []string{"lld_rules", "hosts", "host_discovery", "hstgrp", "interface_snmp", "rights", "ids", "auditlog"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lld.db")
	conn, err := Open(config.SQLiteConfig{Path: path})
	require.NoError(t, err)

	require.NoError(t, conn.Create(&model.LLDRule{RuleID: 1, HostID: 10, Name: "fs", Lifetime: 3600}).Error)
	var rule model.LLDRule
	require.NoError(t, conn.First(&rule, "ruleid = ?", 1).Error)
	assert.Equal(t, int64(3600), rule.Lifetime)
}

func TestTransactionWithRetryRollsBack(t *testing.T) {
	conn, err := OpenMemory()
	require.NoError(t, err)

	boom := errors.New("boom")
	err = TransactionWithRetry(context.Background(), conn, func(tx *gorm.DB) error {
		if err := tx.Create(&model.HostGroup{GroupID: 1, Name: "Linux"}).Error; err != nil {
			return err
		}
		return boom
	}, 3, 0)
	assert.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, conn.Model(&model.HostGroup{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestIsBusyError(t *testing.T) {
	assert.True(t, IsBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsBusyError(errors.New("constraint failed")))
	assert.False(t, IsBusyError(nil))
}

func TestNoRetryStopsRetries(t *testing.T) {
	conn, err := OpenMemory()
	require.NoError(t, err)

	calls := 0
	busy := errors.New("database is locked")
	err = TransactionWithRetry(context.Background(), conn, func(tx *gorm.DB) error {
		calls++
		return NoRetry(busy)
	}, 3, 0)
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, 1, calls)
}

func TestRetryGuardStopsRetries(t *testing.T) {
	conn, err := OpenMemory()
	require.NoError(t, err)

	busy := errors.New("database is locked")
	for _, tc := range []struct {
		name  string
		allow bool
		calls int
	}{
		{"allowed", true, 3},
		{"refused", false, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := TransactionWithRetry(context.Background(), conn, func(tx *gorm.DB) error {
				calls++
				return busy
			}, 3, time.Millisecond, func() bool { return tc.allow })
			assert.ErrorIs(t, err, busy)
			assert.Equal(t, tc.calls, calls)
		})
	}
}
