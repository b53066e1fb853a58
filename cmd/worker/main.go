package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/app"
	"github.com/noah-isme/backend-resto/internal/lock"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/reward"
)

const taskRewardSweep = "reward:sweep_expired"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, "worker")
	if err != nil {
		panic(err)
	}
	defer deps.Close()

	cfg := deps.Cfg
	logger := deps.Log

	obs.MustRegisterDomainMetrics("resto", nil)

	rewardSvc := &reward.Service{Runner: deps.Store, Expiry: cfg.RewardExpiry}
	locker := lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for asynq")
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskRewardSweep, func(ctx context.Context, _ *asynq.Task) error {
		// The lock keeps overlapping sweeps from racing when more than one
		// worker instance is deployed.
		return locker.WithLock(ctx, "lock:"+taskRewardSweep, cfg.LockTTL, func(ctx context.Context) error {
			expired, err := rewardSvc.SweepExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("reward sweep failed")
				return err
			}
			logger.Info().Int64("expired", expired).Msg("reward sweep complete")
			return nil
		})
	})

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Logger:      asynqLogger{deps.Log},
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{deps.Log},
	})
	spec := fmt.Sprintf("@every %s", sweepInterval(cfg.SweepInterval))
	if _, err := scheduler.Register(spec, asynq.NewTask(taskRewardSweep, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register sweep schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		scheduler.Shutdown()
		srv.Shutdown()
	}()

	logger.Info().Str("schedule", spec).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
	logger.Info().Msg("worker shutdown complete")
}

func sweepInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
