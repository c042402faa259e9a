package store

import (
	"path/filepath"
	"testing"

	"backtester/internal/config"
)

func TestNewSQLite_InMemoryClampsToSingleConnection(t *testing.T) {
	st, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 8,
		MaxIdleConns: 8,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer st.Close()

	// 内存库每条连接各自为政，连接池放开就会出现查不到刚写入数据的情况。
	if got := st.DB().Stats().MaxOpenConnections; got != 1 {
		t.Errorf("in-memory max open connections = %d, want 1", got)
	}
}

func TestNewSQLite_FileBackedUsesConfiguredPool(t *testing.T) {
	st, err := NewSQLite(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "bars.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer st.Close()

	if got := st.DB().Stats().MaxOpenConnections; got != 4 {
		t.Errorf("file-backed max open connections = %d, want 4", got)
	}
}
