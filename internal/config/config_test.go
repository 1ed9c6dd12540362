package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DBConfig.Host != "localhost" {
		t.Errorf("db host = %s, want localhost", cfg.DBConfig.Host)
	}
	if cfg.DBConfig.Port != 5432 {
		t.Errorf("db port = %d, want 5432", cfg.DBConfig.Port)
	}
	if cfg.KafkaTransferCommandsTopic != "ledger.transfer.commands" {
		t.Errorf("commands topic = %s", cfg.KafkaTransferCommandsTopic)
	}
	if cfg.KafkaTransactionsTopic != "ledger.transactions.committed" {
		t.Errorf("transactions topic = %s", cfg.KafkaTransactionsTopic)
	}
	if cfg.OutboxPollInterval != time.Second {
		t.Errorf("poll interval = %s, want 1s", cfg.OutboxPollInterval)
	}
	if cfg.LockWaitTimeout != 0 {
		t.Errorf("lock wait timeout = %s, want 0", cfg.LockWaitTimeout)
	}
	if cfg.MigrationsPath != "file://migrations" {
		t.Errorf("migrations path = %s", cfg.MigrationsPath)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LEDGER_DB_HOST", "db.internal")
	t.Setenv("LEDGER_DB_PORT", "6543")
	t.Setenv("LEDGER_DB_NAME", "ledger_test")
	t.Setenv("KAFKA_BROKER_URL", "kafka-1:9092,kafka-2:9092")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("LEDGER_LOCK_WAIT_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DBConfig.Host != "db.internal" || cfg.DBConfig.Port != 6543 {
		t.Errorf("db endpoint = %s:%d", cfg.DBConfig.Host, cfg.DBConfig.Port)
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %s, want 250ms", cfg.OutboxPollInterval)
	}
	if cfg.LockWaitTimeout != 5*time.Second {
		t.Errorf("lock wait timeout = %s, want 5s", cfg.LockWaitTimeout)
	}

	brokers := cfg.GetKafkaBrokers()
	if len(brokers) != 2 || brokers[0] != "kafka-1:9092" || brokers[1] != "kafka-2:9092" {
		t.Errorf("brokers = %v", brokers)
	}

	want := "host=db.internal port=6543 user=user password=password dbname=ledger_test sslmode=disable"
	if got := cfg.GetDBConnectionString(); got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
}

func TestGetEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("LEDGER_DB_PORT", "not-a-port")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBConfig.Port != 5432 {
		t.Errorf("db port = %d, want default 5432", cfg.DBConfig.Port)
	}
}
