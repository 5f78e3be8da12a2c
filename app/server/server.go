package server

import (
	"context"
	"fmt"
	"net/http"

	"hailuo-batch/app/auth"
	"hailuo-batch/app/config"
	"hailuo-batch/app/filewatcher"
	"hailuo-batch/app/handler"
	"hailuo-batch/app/logger"
	"hailuo-batch/app/middleware"
	"hailuo-batch/app/model"
	"hailuo-batch/app/service"
	"hailuo-batch/app/store"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config  *config.Config
	Logger  *logger.Logger
	gin     *gin.Engine
	http    *http.Server
	store   *store.TaskStore
	orch    *service.BatchOrchestrator
	runner  *service.BatchRunner
	cron    *cron.Cron
	watcher *filewatcher.InboxWatcher
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger, st *store.TaskStore, client service.RemoteClient) (*Server, error) {
	router := gin.New()
	router.Use(gin.Recovery())

	orch := service.NewBatchOrchestrator(client, st, log)
	runner := service.NewBatchRunner(orch, service.RunOptions{
		OutputDir:    cfg.Batch.OutputDir,
		MaxWorkers:   cfg.Batch.MaxWorkers,
		PollInterval: cfg.Batch.PollInterval(),
		MaxRounds:    cfg.Batch.MaxRounds,
	}, log.Named("runner"))

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config: cfg,
		Logger: log,
		store:  st,
		orch:   orch,
		runner: runner,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}

	if err := s.setupSchedule(); err != nil {
		return nil, err
	}

	if cfg.Watch.Enabled {
		watcher, err := filewatcher.NewInboxWatcher(cfg.Watch, s.startBatchFromFile, log.Named("inbox"))
		if err != nil {
			return nil, err
		}
		s.watcher = watcher
	}

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	s.cron.Start()

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("启动收件箱监控失败: %w", err)
		}
	}

	return s.http.ListenAndServe()
}

// Shutdown 停止接收请求，中断运行中的批次并等待报告写出
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.Logger.Errorf("停止收件箱监控失败: %v", err)
		}
	}

	err := s.http.Shutdown(ctx)

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.Logger.Warn("等待定时任务结束超时")
	}

	s.runner.Stop()
	return err
}

// startBatchFromFile 收件箱中的任务文件启动一个后台批次
func (s *Server) startBatchFromFile(path string) error {
	specs, err := model.LoadTaskSpecs(path)
	if err != nil {
		return err
	}
	batchID := s.runner.Start(specs, path)
	s.Logger.Infof("任务文件 %s 已启动批次 %s，任务数: %d", path, batchID, len(specs))
	return nil
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	jwtService := auth.NewJWTService(s.Config.JWT)
	authHandler := handler.NewAuthHandler(s.Config, jwtService)
	taskHandler := handler.NewTaskHandler(s.store, s.orch, s.runner, s.Config.Batch.MaxWorkers, s.Logger.Named("api"))

	api := s.gin.Group("/api")

	// 登录接口不需要JWT验证
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(jwtService))
	{
		batches := protected.Group("/batches")
		{
			batches.GET("", taskHandler.ListBatches)
			batches.POST("", taskHandler.CreateBatch)
			batches.GET("/:batch_id/tasks", taskHandler.GetBatchTasks)
			batches.POST("/:batch_id/refresh", taskHandler.RefreshBatch)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.GET("/:task_id", taskHandler.GetTask)
			tasks.POST("/status", taskHandler.QueryStatus)
		}
	}
}
