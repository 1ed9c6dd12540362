package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBConfig struct {
		Host     string `env:"LEDGER_DB_HOST"`
		Port     int    `env:"LEDGER_DB_PORT"`
		User     string `env:"LEDGER_DB_USER"`
		Password string `env:"LEDGER_DB_PASSWORD"`
		Name     string `env:"LEDGER_DB_NAME"`
		SSLMode  string `env:"LEDGER_DB_SSLMODE"`
	}

	KafkaBrokerURL             string `env:"KAFKA_BROKER_URL"`
	KafkaTransferCommandsTopic string `env:"KAFKA_TRANSFER_COMMANDS_TOPIC"`
	KafkaTransactionsTopic     string `env:"KAFKA_TRANSACTIONS_TOPIC"`
	KafkaConsumerGroup         string `env:"KAFKA_CONSUMER_GROUP"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT"`

	// LockWaitTimeout bounds how long an operation waits for an account
	// lock; zero means wait indefinitely.
	LockWaitTimeout time.Duration `env:"LEDGER_LOCK_WAIT_TIMEOUT"`

	MigrationsPath string `env:"LEDGER_MIGRATIONS_PATH"`
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DBConfig.Host = getEnvOrDefault("LEDGER_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("LEDGER_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("LEDGER_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("LEDGER_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("LEDGER_DB_NAME", "ledger_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("LEDGER_DB_SSLMODE", "disable")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaTransferCommandsTopic = getEnvOrDefault("KAFKA_TRANSFER_COMMANDS_TOPIC", "ledger.transfer.commands")
	cfg.KafkaTransactionsTopic = getEnvOrDefault("KAFKA_TRANSACTIONS_TOPIC", "ledger.transactions.committed")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "ledger-service-group")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	cfg.LockWaitTimeout = getEnvAsDuration("LEDGER_LOCK_WAIT_TIMEOUT", 0)

	cfg.MigrationsPath = getEnvOrDefault("LEDGER_MIGRATIONS_PATH", "file://migrations")

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
