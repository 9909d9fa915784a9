package config

import "time"

type Config struct {
	AppName    string `env:"APP_NAME" env-default:"clover"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs bool   `env:"PRETTY_LOGS" env-default:"false"`

	// Review API server
	Port                          int      `env:"PORT" env-default:"3010"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`

	// PostgreSQL (Contact Store)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" env-default:"localhost:4317"`
	TracingProtocol string `env:"TRACING_PROTOCOL" env-default:"grpc"`
	TracingInsecure bool   `env:"TRACING_INSECURE" env-default:"true"`

	// Kafka merge-event emission
	KafkaEmitEnabled  bool     `env:"KAFKA_EMIT_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"contact-merge-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Dedupe policy
	MinPhoneDigits        int    `env:"DEDUPE_MIN_PHONE_DIGITS" env-default:"10" validate:"gte=7"`
	AmountToleranceCents  int64  `env:"DEDUPE_AMOUNT_TOLERANCE_CENTS" env-default:"100" validate:"gte=0"`
	AutoMergeTier         string `env:"DEDUPE_AUTO_MERGE_TIER" env-default:"high" validate:"oneof=high never"`
	DetectAddressStrategy bool   `env:"DEDUPE_DETECT_ADDRESS" env-default:"true"`
	MaxGroupSize          int    `env:"DEDUPE_MAX_GROUP_SIZE" env-default:"25" validate:"gte=2"`
}
