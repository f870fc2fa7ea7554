package db

import (
	"testing"

	"github.com/craftcv/craftcv/internal/config"
)

func TestOpenAppliesPoolSettings(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := config.Config{
		DBType:            "sqlite",
		DBMaxIdleConn:     3,
		DBMaxOpenConn:     7,
		DBConnMaxLifetime: 300,
		DBConnMaxIdleTime: 60,
	}
	conn, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	defer sqlDB.Close()

	if got := sqlDB.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("MaxOpenConnections = %d, want 7", got)
	}
}

func TestOpenUnsupportedType(t *testing.T) {
	if _, err := Open(config.Config{DBType: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}
