package main

import (
	"context"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harborcrm/clover/config"
	"github.com/harborcrm/clover/internal/database"
	"github.com/harborcrm/clover/internal/repositories/contact"
	"github.com/harborcrm/clover/internal/repositories/contactemail"
	"github.com/harborcrm/clover/internal/repositories/mergeaudit"
	"github.com/harborcrm/clover/internal/repositories/transaction"
	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/detector"
	"github.com/harborcrm/clover/pkg/engine"
	"github.com/harborcrm/clover/pkg/events"
	"github.com/harborcrm/clover/pkg/executor"
	"github.com/harborcrm/clover/pkg/kafka"
	"github.com/harborcrm/clover/pkg/planner"
	"github.com/harborcrm/clover/pkg/scoring"
)

// app holds everything a command needs after bootstrap.
type app struct {
	cfg          *config.Config
	logger       ectologger.Logger
	db           database.DB
	contacts     *contact.Repository
	emails       *contactemail.Repository
	transactions *transaction.Repository
	audits       *mergeaudit.Repository
	engine       *engine.Engine
	producer     *kafka.Producer
	stopTracing  func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to bind environment config")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// newApp loads config, connects to the contact store, runs migrations and
// wires the dedupe pipeline. Callers must defer close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	stopTracing, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: cfg.AppName,
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		Protocol:    cfg.TracingProtocol,
		Insecure:    cfg.TracingInsecure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up tracing")
	}

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	contacts := contact.NewRepository(db, logger)
	emails := contactemail.NewRepository(db, logger)
	transactions := transaction.NewRepository(db, logger)
	audits := mergeaudit.NewRepository(db, logger)

	det := detector.New(detector.Config{
		MinPhoneDigits: cfg.MinPhoneDigits,
		DetectAddress:  cfg.DetectAddressStrategy,
		MaxGroupSize:   cfg.MaxGroupSize,
	}, logger)
	scorer := scoring.New(scoring.Config{MinPhoneDigits: cfg.MinPhoneDigits})
	pln := planner.New(planner.Config{
		AmountToleranceCents: cfg.AmountToleranceCents,
		MinPhoneDigits:       cfg.MinPhoneDigits,
	})
	exec := executor.New(db, contacts, emails, transactions, audits, logger)

	var producer *kafka.Producer
	var emitter engine.MergeEventEmitter
	if cfg.KafkaEmitEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		emitter = events.NewEmitter(producer, logger)
	}

	eng := engine.New(
		engine.Config{AutoMergeTier: cfg.AutoMergeTier},
		det, scorer, pln, exec,
		contacts, emails,
		emitter, logger,
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		contacts:     contacts,
		emails:       emails,
		transactions: transactions,
		audits:       audits,
		engine:       eng,
		producer:     producer,
		stopTracing:  stopTracing,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close Kafka producer")
		}
	}
	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to flush tracing")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close database")
		}
	}
}
