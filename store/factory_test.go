package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpen_DefaultsToMemory(t *testing.T) {
	s, err := Open(context.Background(), Options{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), Options{Backend: BackendMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}

func TestOpen_Gorm(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	s, err := Open(context.Background(), Options{Backend: BackendGorm, DB: db}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Gorm{}, s)
}

func TestOpen_GormRequiresDB(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: BackendGorm}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "etcd"}, zap.NewNop())
	assert.Error(t, err)
}
