package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/broker"
	"github.com/bohemiyan/LMS/internal/certs"
	"github.com/bohemiyan/LMS/internal/config"
	"github.com/bohemiyan/LMS/internal/db"
	"github.com/bohemiyan/LMS/internal/queue"
	"github.com/bohemiyan/LMS/internal/routes"
	"github.com/bohemiyan/LMS/zapLogger"
)

// runtime holds the connections shared by every command.
type runtime struct {
	cfg     *config.Config
	logFile *os.File
	db      *db.Database
	redis   *redis.Client
	svc     *lms.LMS
}

func bootstrap(ctx context.Context, migrate bool) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logFile, err := zapLogger.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logFile: logFile}

	rt.db, err = db.Open(cfg)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to initialize %s: %w", cfg.DBDriver, err)
	}
	zapLogger.Log.Infow("Successfully connected to database", "driver", cfg.DBDriver)

	rt.redis, err = db.NewRedisClient(ctx, cfg)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	if rt.redis != nil {
		zapLogger.Log.Info("Successfully connected to Redis")
	}

	rt.svc, err = lms.New(lms.Config{
		DB:                 rt.db.GormDB,
		RedisClient:        rt.redis,
		Logger:             zapLogger.Log,
		AppName:            cfg.AppName,
		CacheTTL:           cfg.CacheTTL,
		AutoMigrate:        migrate,
		EnableAuditLogging: cfg.AuditLogging,
		PropagationWorkers: cfg.PropagationWorkers,
		SweepWorkers:       cfg.SweepWorkers,
		EscalationTargets:  cfg.EscalationTargets,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.redis != nil {
		rt.redis.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			zapLogger.Log.Warnw("failed to close database", "error", err)
		}
	}
	if rt.logFile != nil {
		rt.logFile.Close()
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.svc.Migrate(cmd.Context()); err != nil {
		return err
	}
	zapLogger.Log.Info("Database schema is up to date")
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.svc.CheckAllCompliance(cmd.Context(), 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d escalated=%d resolved=%d failed=%d\n",
		res.Checked, res.Escalated, res.Resolved, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d enrollments could not be checked", res.Failed)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	jobs := queue.New(cfg.CertificateWorkers, cfg.CertificateQueueSize, zapLogger.Log)
	jobs.Start(ctx)
	defer jobs.Stop()

	policy := queue.RetryPolicy{MaxAttempts: cfg.CertificateRetries, Schedule: cfg.CertificateRetryDelays}
	certificates := lms.NewCertificateWorker(rt.svc, jobs, certs.FileRenderer{Dir: cfg.CertificateDir}, policy)
	certificates.Register(rt.svc.Events())
	rt.svc.RegisterRewardListeners(rt.svc.Events())

	if cfg.NATSURL != "" {
		nc, err := broker.Connect(cfg.NATSURL, zapLogger.Log)
		if err != nil {
			return err
		}
		defer drain(nc)
		broker.NewForwarder(nc, zapLogger.Log).Register(rt.svc.Events())
		zapLogger.Log.Infow("Forwarding events to NATS", "url", cfg.NATSURL)
	}

	app := routes.NewApp(rt.svc, routes.Options{
		JWTSecret:    cfg.JWTSecret,
		Log:          zapLogger.Log,
		LogOutput:    rt.logFile,
		Certificates: certificates,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.AppPort)
		zapLogger.Log.Infof("Server started on port %d", cfg.AppPort)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zapLogger.Log.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func drain(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		zapLogger.Log.Warnw("failed to drain nats connection", "error", err)
	}
}
