package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledger/internal/app/ledger"
	"ledger/internal/config"
	ledger_kafka "ledger/internal/handler/kafka"
	"ledger/internal/infrastructure/database"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/outbox"
	accounts_pg "ledger/internal/repository/accounts_repo/postgres"
	clients_pg "ledger/internal/repository/clients_repo/postgres"
	inbox_pg "ledger/internal/repository/inbox_repo/postgres"
	outbox_pg "ledger/internal/repository/outbox_repo/postgres"
	transactions_pg "ledger/internal/repository/transactions_repo/postgres"
)

func ensureKafkaTopics(ctx context.Context, brokerURLs []string, topics []string, logger *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokerURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		if err == kafka.TopicAlreadyExists {
			logger.Info("One or more Kafka topics already exist, skipping creation.")
			return nil
		}
		return fmt.Errorf("failed to create Kafka topics: %w", err)
	}
	logger.Info("Kafka topics ensured successfully.", zap.Strings("topics", topics))
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Ledger Service starting...")

	appLogger.Info("Waiting for database to be available...")
	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(cfg.GetDBConnectionString())
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaBrokers := cfg.GetKafkaBrokers()
	requiredTopics := []string{
		cfg.KafkaTransferCommandsTopic,
		cfg.KafkaTransactionsTopic,
	}

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer topicCancel()
	if err := ensureKafkaTopics(topicCtx, kafkaBrokers, requiredTopics, appLogger); err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	clientRepository := clients_pg.NewClientRepository()
	accountRepository := accounts_pg.NewAccountRepository()
	transactionRepository := transactions_pg.NewTransactionRepository()
	inboxRepository := inbox_pg.NewInboxRepository()
	outboxRepository := outbox_pg.NewOutboxRepository()
	txManager := database.NewTxManager(db)

	ledgerService := ledger.NewLedgerService(
		txManager,
		db,
		clientRepository,
		accountRepository,
		transactionRepository,
		inboxRepository,
		outboxRepository,
		cfg.LockWaitTimeout,
		appLogger.With(zap.String("component", "LedgerService")),
	)
	appLogger.Info("Ledger Service initialized.")

	kafkaProducer := kafka_infra.NewProducer(
		kafkaBrokers,
		appLogger.With(zap.String("component", "KafkaProducer")),
	)
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		db,
		outboxRepository,
		kafkaProducer,
		cfg.KafkaTransactionsTopic,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)
	appLogger.Info("Outbox Processor initialized.")

	transferCommandHandler := ledger_kafka.TransferCommandMessageHandler(
		ledgerService,
		appLogger.With(zap.String("component", "TransferCommandHandler")),
	)
	transferCommandConsumer := kafka_infra.NewConsumer(
		kafkaBrokers,
		cfg.KafkaConsumerGroup,
		cfg.KafkaTransferCommandsTopic,
		appLogger.With(zap.String("component", "TransferCommandConsumer")),
	)
	appLogger.Info("Transfer Command Kafka Consumer initialized.")

	ctxMain, cancelMain := context.WithCancel(context.Background())

	go func() {
		outboxProcessor.Start(ctxMain)
	}()

	go func() {
		if err := transferCommandConsumer.Start(ctxMain, transferCommandHandler); err != nil {
			if err != context.Canceled && err != context.DeadlineExceeded {
				appLogger.Error("Transfer Command Kafka Consumer failed", zap.Error(err))
			}
		}
		appLogger.Info("Transfer Command Kafka Consumer stopped.")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down application...")

	cancelMain()
	transferCommandConsumer.Stop()

	// Give the consumer and the relay a moment to drain before the
	// deferred closes run.
	time.Sleep(2 * time.Second)

	appLogger.Info("Application gracefully shut down.")
}
