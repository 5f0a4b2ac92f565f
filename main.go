package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"PPAdmin/global"
	"PPAdmin/global/config"
	"PPAdmin/logger"
	mid "PPAdmin/middleware"
	midsec "PPAdmin/middleware/security"
	chatmod "PPAdmin/module/chat"
	chatsvc "PPAdmin/module/chat/service"
	chatstore "PPAdmin/module/chat/store"
	usermod "PPAdmin/module/user"
	usersvc "PPAdmin/module/user/service"
	userstore "PPAdmin/module/user/store"
	wschat "PPAdmin/service/chat"
	"PPAdmin/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("[Main] load config", zap.Error(err))
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	// 只有日志级别支持热更新，其余配置需重启
	stopWatch, err := config.Watch(func(c *config.Config) { logger.Init(c.Log.Level) })
	if err != nil {
		logger.Warn("[Main] config watch disabled", zap.Error(err))
	} else {
		defer func() { _ = stopWatch() }()
	}

	if err := run(cfg); err != nil {
		logger.Error("[Main] exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global.ConfigIds(cfg)

	// 存储
	var (
		chatStore chatstore.Store
		devices   userstore.Devices
	)
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		chatStore = chatstore.NewMemStore()
		devices = userstore.NewMemStore()
		logger.Warn("[Main] memory storage, data is lost on restart")
	default:
		mgr := global.ConfigMgo(ctx, cfg, chatstore.EnsureIndexes, userstore.EnsureIndexes)
		defer mgr.Close()
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := mgr.WaitReady(waitCtx)
		cancel()
		if err != nil {
			return err
		}
		chatStore = chatstore.NewMongoStore(mgr)
		devices = userstore.NewMongoStore(mgr)
	}

	// 领域事件
	chatOpts := []chatsvc.Option{}
	pub, err := global.ConfigEvents(cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
		chatOpts = append(chatOpts, chatsvc.WithPublisher(pub))
	}

	// presence 镜像
	presenceOpts := []usersvc.Option{}
	if mirror, closer := global.ConfigRedis(ctx, cfg); mirror != nil {
		defer func() { _ = closer.Close() }()
		presenceOpts = append(presenceOpts, usersvc.WithMirror(mirror))
	}

	jwtOpts := security.Options{Secret: []byte(cfg.JWT.Secret), Alg: cfg.JWT.Alg, TTL: cfg.JWT.TTL}
	verifier := security.NewVerifier(jwtOpts)

	chatService := chatsvc.NewChatService(chatStore, chatOpts...)
	presence := usersvc.NewPresenceService(devices, presenceOpts...)

	reg := wschat.NewRegistry()
	disp := wschat.NewDispatcher(reg)
	ws := wschat.NewServer(cfg.WS, wschat.ServerDeps{
		Dispatcher: disp,
		Chat:       chatService,
		Presence:   presence,
		Verifier:   verifier,
		StatusRoom: usersvc.StatusRoom,
	})

	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mid.Default().Handlers()...)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/chat/:user_id", ws.HandleChat)
	r.GET("/ws/user/:token", ws.HandleUser)

	chatH := chatmod.NewHandler(chatService, disp)
	userH := usermod.NewHandler(presence, jwtOpts)
	api := mid.NewRouter(r.Group("/api"), midsec.Middleware(verifier, midsec.DefaultOptions()))
	api.POST("/chat/send", chatH.HandlerSend, mid.RouteOpt{IsAuth: true})
	api.GET("/chat/rooms/:room_id/messages", chatH.HandlerMessages, mid.RouteOpt{IsAuth: true})
	api.GET("/users/status", userH.HandlerStatus, mid.RouteOpt{IsAuth: true})
	if cfg.App.Env == "dev" {
		api.POST("/users/login", userH.HandlerLogin, mid.RouteOpt{})
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("[HTTP] listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[Main] shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// 先停止接收新连接；Shutdown 不会等待被 hijack 的 socket
		err := srv.Shutdown(shutCtx)
		reg.CloseAll()
		// 等 session 清理（presence 下线写库）完成后才能关闭存储
		if werr := ws.Wait(shutCtx); werr != nil {
			logger.Warn("[Main] sessions still closing", zap.Error(werr))
		}
		return err
	})
	return g.Wait()
}
