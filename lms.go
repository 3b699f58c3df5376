package lms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config holds the configuration for the LMS core.
type Config struct {
	DB          *gorm.DB
	RedisClient *redis.Client // optional, disables the permission cache when nil
	Logger      *zap.SugaredLogger
	Events      *EventBus

	AppName            string
	CacheTTL           time.Duration
	AutoMigrate        bool
	EnableAuditLogging bool

	// PropagationWorkers bounds the per-user fan-out after a role's permissions change.
	PropagationWorkers int
	// SweepWorkers bounds the compliance check-all pass.
	SweepWorkers int
	// EscalationTargets maps escalation level (index) to an audit label.
	EscalationTargets []string

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// LMS is the entry point of the enrollment, compliance, permission and hierarchy engines.
type LMS struct {
	db                 *gorm.DB
	redis              *redis.Client
	log                *zap.SugaredLogger
	events             *EventBus
	appName            string
	cacheTTL           time.Duration
	auditEnabled       bool
	propagationWorkers int
	sweepWorkers       int
	escalation         EscalationPolicy
	now                func() time.Time

	moveMu sync.Mutex
}

// New initializes the LMS core.
func New(cfg Config) (*LMS, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.AppName == "" {
		cfg.AppName = "lms"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.PropagationWorkers <= 0 {
		cfg.PropagationWorkers = 8
	}
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Events == nil {
		cfg.Events = NewEventBus(cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	policy, err := NewEscalationPolicy(cfg.EscalationTargets)
	if err != nil {
		return nil, err
	}

	l := &LMS{
		db:                 cfg.DB,
		redis:              cfg.RedisClient,
		log:                cfg.Logger,
		events:             cfg.Events,
		appName:            cfg.AppName,
		cacheTTL:           cfg.CacheTTL,
		auditEnabled:       cfg.EnableAuditLogging,
		propagationWorkers: cfg.PropagationWorkers,
		sweepWorkers:       cfg.SweepWorkers,
		escalation:         policy,
		now:                cfg.Now,
	}

	if cfg.AutoMigrate {
		if err := l.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Migrate creates or updates every table owned by the core.
func (l *LMS) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

// Events returns the bus domain events are published on.
func (l *LMS) Events() *EventBus {
	return l.events
}

// Ping checks the database connection.
func (l *LMS) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
