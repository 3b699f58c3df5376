package db

import (
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bohemiyan/LMS/internal/config"
)

// Database wraps the gorm handle and, for postgres, the raw sql.DB used for health checks.
type Database struct {
	DB     *sql.DB
	GormDB *gorm.DB
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	}
}

// Open connects to the database selected by cfg.DBDriver.
func Open(cfg *config.Config) (*Database, error) {
	switch cfg.DBDriver {
	case "postgres":
		return NewPostgresDB(cfg)
	case "mysql":
		return openGorm(mysql.Open(cfg.MySQLDSN), "MySQL")
	case "sqlite":
		d, err := openGorm(sqlite.Open(cfg.SQLitePath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), "SQLite")
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers anyway
		d.DB.SetMaxOpenConns(1)
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

func NewPostgresDB(cfg *config.Config) (*Database, error) {
	dsn := cfg.PostgresDSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// GORM reuses the lib/pq pool
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &Database{DB: db, GormDB: gormDB}, nil
}

func openGorm(dialector gorm.Dialector, name string) (*Database, error) {
	gormDB, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", name, err)
	}
	return &Database{DB: sqlDB, GormDB: gormDB}, nil
}

func (d *Database) Close() error {
	if err := d.DB.Close(); err != nil {
		return fmt.Errorf("failed to close sql.DB: %w", err)
	}
	return nil
}
