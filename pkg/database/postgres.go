package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"apodetl/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the libpq connection string for the config.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// WithDBName returns a copy of the config pointing at another database.
func (c Config) WithDBName(name string) Config {
	c.DBName = name
	return c
}

// DialectorFunc builds the gorm dialector for a config.
type DialectorFunc func(Config) gorm.Dialector

func PostgresDialector(c Config) gorm.Dialector {
	return postgres.Open(c.DSN())
}

func gormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Connect opens the long-lived pooled handle used by the ops API.
func Connect(config Config) (*gorm.DB, error) {
	return open(PostgresDialector(config), logger.Warn, 10, 100)
}

func open(dialector gorm.Dialector, level logger.LogLevel, maxIdle, maxOpen int) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, gormConfig(level))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Connector hands out one short-lived connection per unit of work.
type Connector struct {
	config   Config
	dial     DialectorFunc
	logLevel logger.LogLevel
}

type ConnectorOption func(*Connector)

func WithDialector(fn DialectorFunc) ConnectorOption {
	return func(c *Connector) { c.dial = fn }
}

func WithLogLevel(level logger.LogLevel) ConnectorOption {
	return func(c *Connector) { c.logLevel = level }
}

func NewConnector(config Config, opts ...ConnectorOption) *Connector {
	c := &Connector{
		config:   config,
		dial:     PostgresDialector,
		logLevel: logger.Warn,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the connection settings the connector dials with.
func (c *Connector) Config() Config {
	return c.config
}

// ForDatabase returns a connector with the same settings aimed at another database.
func (c *Connector) ForDatabase(name string) *Connector {
	clone := *c
	clone.config = c.config.WithDBName(name)
	return &clone
}

// Do opens a connection, runs fn on it and closes it on every return path.
func (c *Connector) Do(ctx context.Context, fn func(db *gorm.DB) error) (err error) {
	db, err := open(c.dial(c.config), c.logLevel, 1, 1)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Warn("Failed to close database connection", "database", c.config.DBName, "error", cerr)
		}
	}()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database %q: %w", c.config.DBName, err)
	}

	return fn(db.WithContext(ctx))
}

// Migrate creates the run history table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.PipelineRun{}); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_pipeline_runs_dag_started ON pipeline_runs(dag_id, started_at DESC)").Error; err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
