package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/availability"
	"github.com/romiteld/eva-assistant-sub006/internal/cache"
	"github.com/romiteld/eva-assistant-sub006/internal/config"
	"github.com/romiteld/eva-assistant-sub006/internal/database"
	"github.com/romiteld/eva-assistant-sub006/internal/generation"
	"github.com/romiteld/eva-assistant-sub006/internal/handler"
	"github.com/romiteld/eva-assistant-sub006/internal/interview"
	"github.com/romiteld/eva-assistant-sub006/internal/logger"
	"github.com/romiteld/eva-assistant-sub006/internal/notify"
	"github.com/romiteld/eva-assistant-sub006/internal/repository"
	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
)

type application struct {
	DB      *pgxpool.Pool
	Logger  *zap.Logger
	Config  *config.Config
	Engine  *workflow.Engine
	Handler *handler.Handler
}

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, _ := logger.NewLogger(cfg.Env)
	defer log.Sync()
	sugar := log.Sugar()
	sugar.Infof("config loaded, env=%s", cfg.Env)

	pool, err := database.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxOpenConns, cfg.DB.MaxIdleTime)
	if err != nil {
		sugar.Fatal(err)
	}
	defer pool.Close()

	redisClient := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := cache.Ping(ctx, redisClient); err != nil {
		sugar.Warnf("redis unreachable, availability caching degraded: %v", err)
	}

	repo := repository.NewRepository(pool)

	source := availability.NewCachedSource(
		availability.NewHTTPSource(cfg.Availability.BaseURL, cfg.Availability.Timeout),
		cache.NewJSONCache(redisClient, cfg.Redis.CacheTTL),
		log,
	)
	genClient := generation.NewClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, cfg.Generation.Timeout)
	dispatcher := notify.NewHTTPDispatcher(cfg.Notify.BaseURL, cfg.Notify.Timeout)

	registry := workflow.NewRegistry()
	if err := registry.Register(interview.InterviewPrepGraph(cfg.Engine.TaskTimeout)); err != nil {
		sugar.Fatal(err)
	}

	engine := workflow.NewEngine(registry, log, workflow.WithMaxParallel(cfg.Engine.MaxParallel))
	engine.RegisterExecutor(workflow.TaskKindSchedule, &interview.ScheduleExecutor{
		Store:       repo,
		Source:      source,
		HorizonDays: cfg.Availability.HorizonDays,
		Logger:      log,
	})
	engine.RegisterExecutor(workflow.TaskKindGenerate, &interview.GenerateExecutor{Client: genClient})
	engine.RegisterExecutor(workflow.TaskKindNotify, &interview.NotifyExecutor{Dispatcher: dispatcher, Logger: log})

	svc := interview.NewService(repo, engine, log,
		interview.WithDispatcher(dispatcher),
		interview.WithArchiver(repo),
		interview.WithNotifyRecipient(cfg.Notify.Recipient),
	)

	app := &application{
		DB:     pool,
		Logger: log,
		Config: cfg,
		Engine: engine,
		Handler: &handler.Handler{
			Logger:  log,
			Service: svc,
			Engine:  engine,
			Archive: repo,
		},
	}

	if err := app.serve(); err != nil {
		sugar.Fatal(err)
	}
}
