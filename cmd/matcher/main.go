package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	amqpclient "github.com/yungbote/homeswap-backend/internal/clients/amqp"
	redisclient "github.com/yungbote/homeswap-backend/internal/clients/redis"
	"github.com/yungbote/homeswap-backend/internal/data/aggregates"
	"github.com/yungbote/homeswap-backend/internal/data/db"
	"github.com/yungbote/homeswap-backend/internal/data/repos"
	"github.com/yungbote/homeswap-backend/internal/jobs"
	"github.com/yungbote/homeswap-backend/internal/lease"
	"github.com/yungbote/homeswap-backend/internal/matching"
	"github.com/yungbote/homeswap-backend/internal/observability"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
	"github.com/yungbote/homeswap-backend/internal/services"
	"github.com/yungbote/homeswap-backend/internal/temporalx"
	"github.com/yungbote/homeswap-backend/internal/temporalx/temporalworker"
)

const version = "0.1.0"

func main() {
	// Env
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Failed to load .env: %v\n", err)
	}

	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("matcher exited with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	mode := envutil.String("MATCHER_MODE", "worker")

	// Tracing
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "homeswap-matcher"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     version,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	// Database
	dbService, err := db.NewService(log)
	if err != nil {
		return err
	}
	defer dbService.Close()
	gdb := dbService.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	if err := db.EnsureMatchIndexes(gdb); err != nil {
		return fmt.Errorf("match indexes: %w", err)
	}

	// Metrics
	metrics := observability.Init(log)
	if metrics != nil {
		metrics.StartServer(ctx, log, envutil.String("METRICS_ADDR", ":9090"))
		metrics.StartPostgresCollector(ctx, log, gdb)
	}

	jobCfg := jobs.ConfigFromEnv()
	matchCfg, err := matching.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("matching config: %w", err)
	}

	// Redis (optional)
	rdb, err := redisclient.NewClient(log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		metrics.StartRedisCollector(ctx, log, rdb)
	}

	// Notifiers
	notifier, closeNotifier := buildNotifier(log, rdb)
	defer closeNotifier()

	// Repos, claims and formation
	rs := repos.New(gdb, log)
	var claimer lease.Claimer
	if rdb != nil {
		claimer = lease.NewRedisClaimer(rdb, log, jobCfg.WorkerID, envutil.String("REDIS_CLAIM_PREFIX", ""))
	} else {
		claimer = lease.NewDBClaimer(gdb, log, jobCfg.WorkerID)
	}
	credits := services.NewCreditLedger(rs.Intent, log,
		time.Duration(envutil.Int("REFUND_COOLDOWN_HOURS", 72))*time.Hour)
	formation := aggregates.NewMatchFormationAggregate(aggregates.MatchFormationDeps{
		Base: aggregates.BaseDeps{
			DB:        gdb,
			Log:       log,
			Hooks:     aggregates.NewObservabilityHooks(metrics),
			TxTimeout: matchCfg.TxTimeout,
		},
		Intents:     rs.Intent,
		Matches:     rs.Match,
		Credits:     credits,
		Notifier:    notifier,
		LockTimeout: matchCfg.LockTimeout,
	})

	engine, err := matching.NewEngine(matchCfg, matching.Deps{
		Log:       log,
		Repos:     rs,
		Formation: formation,
		Claimer:   claimer,
		Notifier:  notifier,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	switch mode {
	case "sweep":
		summary, err := engine.RunMatchingSweep(ctx)
		if err != nil {
			return err
		}
		log.Info("one-shot sweep done", "run_id", summary.RunID, "standard_pairs", summary.StandardPairs, "triangles", summary.Triangles)
		return nil
	case "maintenance":
		_, err := engine.RunMaintenance(ctx)
		return err
	case "worker":
	default:
		return fmt.Errorf("unknown MATCHER_MODE %q", mode)
	}

	if metrics != nil {
		metrics.StartJobQueueCollector(ctx, log, func(ctx context.Context) (map[string]int64, error) {
			return rs.MatchJob.CountByStatus(dbctx.Context{Ctx: ctx})
		})
	}

	worker := jobs.NewWorker(log, rs.MatchJob, engine, jobCfg, metrics)
	worker.Start(ctx)

	// Scheduling: Temporal when configured, otherwise the in-process loops.
	tcfg := temporalx.LoadConfig()
	tc, err := temporalx.NewClient(log, tcfg)
	if err != nil {
		return err
	}
	var scheduler *jobs.Scheduler
	if tc != nil {
		defer tc.Close()
		runner, err := temporalworker.NewRunner(log, tc, tcfg, engine)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx); err != nil {
			return err
		}
		if err := runner.EnsureSweep(ctx); err != nil {
			return err
		}
	} else {
		scheduler = jobs.NewScheduler(log, engine, jobCfg)
		scheduler.Start(ctx)
	}

	log.Info("matcher running", "worker_id", jobCfg.WorkerID, "driver", dbService.Driver(), "temporal", tc != nil)
	<-ctx.Done()
	log.Info("shutting down")
	worker.Wait()
	if scheduler != nil {
		scheduler.Wait()
	}
	return nil
}

func buildNotifier(log *logger.Logger, rdb *goredis.Client) (services.MatchNotifier, func()) {
	var sinks []services.MatchNotifier
	closeFn := func() {}
	if rdb != nil {
		sinks = append(sinks, services.NewRedisMatchNotifier(rdb, envutil.String("REDIS_MATCH_CHANNEL", ""), log))
	}
	if cfg := amqpclient.ConfigFromEnv(); cfg.URL != "" {
		pub, err := amqpclient.NewPublisher(cfg, log)
		if err != nil {
			log.Warn("AMQP publisher init failed; match emails disabled", "error", err)
		} else {
			sinks = append(sinks, services.NewAMQPMatchNotifier(pub, log))
			closeFn = func() { _ = pub.Close() }
		}
	}
	if len(sinks) == 0 {
		return services.NewNoopMatchNotifier(), closeFn
	}
	return services.NewFanoutMatchNotifier(sinks...), closeFn
}
