package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/config"
	"github.com/newsroom/core/internal/database"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/pkg/mail"
	pkgcron "github.com/newsroom/core/internal/pkg/cron"
	pkgredis "github.com/newsroom/core/internal/pkg/redis"
	"github.com/newsroom/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const listCacheTTL = 30 * time.Second

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	logger *zap.Logger
	sched  *pkgcron.Scheduler
	tasks  *taskqueue.Service
	worker *taskqueue.Worker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New initializes the application: config → DB → Redis → routes → background workers.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	sender := mail.New(mail.Config{
		Enable:    cfg.Mail.Enable,
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		User:      cfg.Mail.User,
		Pass:      cfg.Mail.Pass,
		From:      cfg.Mail.From,
		ReplyTo:   cfg.Mail.ReplyTo,
		ResendKey: cfg.Mail.ResendKey,
		Timeout:   cfg.Mail.Timeout,
	})
	if !cfg.Mail.Enable {
		logger.Warn("mail is disabled, notifications will be dropped")
	}

	a := build(logger, cfg, db, rc, sender)
	a.start()
	return a, nil
}

// build wires routes and background services without starting them.
func build(logger *zap.Logger, cfg *config.AppConfig, db *gorm.DB, rc *pkgredis.Client, transport mail.Transport) *App {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(newCORS(cfg))

	tasks := taskqueue.NewService(rc)
	a := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		rc:     rc,
		logger: logger,
		sched:  pkgcron.New(logger),
		tasks:  tasks,
		worker: taskqueue.NewWorker(tasks, logger, taskqueue.WithMaxAttempts(cfg.Notify.MaxAttempts)),
	}
	registerCronJobs(a.sched, db, tasks, logger)
	a.registerRoutes(transport)
	return a
}

func (a *App) start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.sched.Start(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.worker.Run(ctx)
	}()
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and closes Redis.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

var processStart = time.Now()
