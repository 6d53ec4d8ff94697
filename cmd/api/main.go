package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/database"
	"github.com/noah-isme/gema-judge/internal/execution"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/language"
	"github.com/noah-isme/gema-judge/internal/logging"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/internal/router"
	"github.com/noah-isme/gema-judge/internal/scheduler"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: cfg.AppName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.Problem{}, &models.TestCase{},
		&models.JudgeSubmission{}, &models.JudgeTestResult{},
		&models.Task{}, &models.TaskSubmission{},
		&models.Notification{}, &models.ActivityLog{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	runner, closeRunner, err := buildRunner(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise execution backend")
	}
	defer closeRunner()

	engine, err := execution.NewEngine(execution.Config{
		Registry:       language.Default(),
		Runner:         runner,
		Pool:           execution.NewPool(cfg.MaxConcurrent, cfg.QueueSize, cfg.QueueWait),
		WorkspaceRoot:  cfg.WorkspaceRoot,
		DefaultTimeout: cfg.ExecutionTimeout,
		CompileTimeout: cfg.CompileTimeout,
		OutputCap:      cfg.MaxOutputBytes,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create execution engine")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	problemRepo := repository.NewProblemRepository(db)
	judgeSubmissionRepo := repository.NewJudgeSubmissionRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, "gema", natsConn, validate, logger)
	judgeService := service.NewJudgeService(problemRepo, judgeSubmissionRepo, engine, validate, logger)
	taskSubmissionService := service.NewTaskSubmissionService(taskRepo, validate, logger)
	activityService := service.NewActivityService(activityRepo, logger)
	autoSubmitService := service.NewAutoSubmitService(taskRepo, notificationService, redisClient, service.AutoSubmitConfig{
		LeaseTTL: cfg.AutoSubmit.LeaseTTL,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		JudgeHandler:          handler.NewJudgeHandler(judgeService, activityService, validate, logger),
		TaskSubmissionHandler: handler.NewTaskSubmissionHandler(taskSubmissionService, validate, logger),
		AutoSubmitHandler:     handler.NewAutoSubmitHandler(autoSubmitService, activityService, logger),
		NotificationHandler:   handler.NewNotificationHandler(notificationService, logger),
		ActivityHandler:       handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:         middleware.Authenticate(cfg.JWTSecret),
	})

	if cfg.AutoSubmit.Enabled {
		sweeper := scheduler.NewRunner(autoSubmitService, cfg.AutoSubmit.Interval, logger)
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("auto-submit scheduler exited")
			}
		}()
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func buildRunner(cfg config.Config, logger zerolog.Logger) (execution.Runner, func(), error) {
	if cfg.ExecutionBackend != config.ExecutionBackendDocker {
		return execution.NewProcessRunner(logger), func() {}, nil
	}

	executor, err := docker.NewDockerExecutor(docker.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		PidsLimit:     int64(cfg.CodeRunPidsLimit),
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := executor.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close docker client")
		}
	}
	return execution.NewContainerRunner(executor, executor.WorkingDir()), closeFn, nil
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
