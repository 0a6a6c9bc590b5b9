package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	logger := zap.NewNop()
	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.db)
	assert.NotNil(t, manager.logger)
	assert.Equal(t, config, manager.config)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManager_DB(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, gormDB, manager.DB())
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()

	assert.NoError(t, manager.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_PingFailed(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	assert.Error(t, manager.Ping(context.Background()))
}

func TestPoolManager_GetStats(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.GreaterOrEqual(t, stats.MaxOpenConnections, 0)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.InUse, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()

	assert.NoError(t, manager.Close())
	assert.NoError(t, mock.ExpectationsWereMet())

	// ping after close is rejected without touching the connection
	assert.Error(t, manager.Ping(context.Background()))
	_ = mockDB
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: PoolConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 1 * time.Hour,
				ConnMaxIdleTime: 30 * time.Minute,
			},
			wantErr: false,
		},
		{
			name:    "invalid max open conns",
			config:  PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5},
			wantErr: true,
		},
		{
			name:    "invalid max idle conns",
			config:  PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0},
			wantErr: true,
		},
		{
			name:    "idle exceeds open",
			config:  PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(assert.AnError))
	assert.True(t, isRetryableError(errDeadlock{}))
}

type errDeadlock struct{}

func (errDeadlock) Error() string { return "Deadlock found when trying to get lock" }
