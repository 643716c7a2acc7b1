package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PartyQ/cache"
	"PartyQ/config"
	"PartyQ/core/auth"
	"PartyQ/core/engine"
	"PartyQ/core/playback"
	"PartyQ/core/queue"
	"PartyQ/core/session"
	"PartyQ/core/spotify"
	"PartyQ/db"
	"PartyQ/logger"
	"PartyQ/model"
	"PartyQ/repository"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	ensureDirExists(cfg.StorageDir)

	// 播放历史账本（可选）
	var historyRepo repository.HistoryRepository
	if cfg.DBHost != "" {
		if err := db.ConnectGormDB(cfg); err != nil {
			logger.Fatal("数据库连接失败", logger.ErrorField(err))
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(&model.PlayHistory{}); err != nil {
			logger.Fatal("数据库迁移失败", logger.ErrorField(err))
		}
		historyRepo = repository.NewHistoryRepository(db.GormDB)
	} else {
		logger.Info("未配置数据库，播放历史走远端账号")
	}

	// 会话镜像（可选）
	if cfg.RedisHost != "" {
		if err := db.ConnectRedis(cfg); err != nil {
			logger.Fatal("Redis连接失败", logger.ErrorField(err))
		}
		defer db.CloseRedis()
		logger.Info("Redis连接成功", logger.String("host", cfg.RedisHost))
	} else {
		logger.Info("未配置Redis，会话仅保存在内存")
	}

	verifier, err := auth.NewVerifier(cfg.AdminPassword, cfg.DJPassword)
	if err != nil {
		logger.Fatal("初始化口令校验失败", logger.ErrorField(err))
	}

	serverCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := spotify.NewClient(cfg)
	if cfg.AutoRefresh {
		client.StartAutoRefresh(serverCtx)
	}

	store := queue.NewStore(cfg.QueueStore)
	playCache := playback.NewCache(client, store)
	deviceCache := playback.NewDeviceCache(client)
	registry := session.NewRegistry(cache.NewSessionCache(db.RedisClient))
	cookies := auth.NewCookieCodec(cfg.SessionSecret)

	var recorder engine.Recorder
	if historyRepo != nil {
		recorder = repository.NewPlayRecorder(historyRepo)
	}
	adv := engine.New(client, store, playCache, deviceCache, recorder)
	go adv.Run(serverCtx)

	apiHandler := NewAPIHandler(cfg, registry, cookies, verifier, store, playCache, deviceCache, client, historyRepo)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// 会话与授权
	router.HandleFunc("/status", apiHandler.AuthStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/status", apiHandler.AuthStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/admin", apiHandler.AdminLoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/dj", apiHandler.DJLoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/guest/name", apiHandler.GuestNameHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", apiHandler.LogoutHandler).Methods(http.MethodPost)

	// 主持人账号授权
	router.HandleFunc("/api/host/connect", apiHandler.HostConnectHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/host/logout", apiHandler.HostLogoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/callback", apiHandler.CallbackHandler).Methods(http.MethodGet)

	// 队列读取与长轮询
	router.HandleFunc("/api/queue/playlist", apiHandler.QueueStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.PlaybackStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue/stream", apiHandler.QueueStreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/devices", apiHandler.DevicesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/devices/stream", apiHandler.DevicesStreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/devices/refresh", apiHandler.DevicesRefreshHandler).Methods(http.MethodPost)

	// 队列变更
	router.HandleFunc("/api/queue/playlist/add", apiHandler.AddTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/playlist/remove", apiHandler.RemoveTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/playlist/reorder", apiHandler.ReorderHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/playlist/clear", apiHandler.ClearHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/playlist/select", apiHandler.SelectPlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/playlist/load", apiHandler.LoadPlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/vote", apiHandler.VoteHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/autoplay", apiHandler.AutoPlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/votesort", apiHandler.VoteSortHandler).Methods(http.MethodPost)

	// 播放控制
	router.HandleFunc("/api/track-play", apiHandler.TrackPlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/pause", apiHandler.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/resume", apiHandler.ResumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", apiHandler.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/transfer", apiHandler.TransferHandler).Methods(http.MethodPost)

	// 搜索与历史
	router.HandleFunc("/api/track-search", apiHandler.SearchTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/search", apiHandler.SearchTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", apiHandler.PlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/search", apiHandler.PlaylistSearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/history", apiHandler.HistoryHandler).Methods(http.MethodGet)

	// 页面与静态资源
	page := pageHandler(cfg.PublicDir)
	for _, route := range []string{"/", "/queue", "/session", "/playlist"} {
		router.HandleFunc(route, page).Methods(http.MethodGet)
	}
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.PublicDir)))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second, // 长轮询最长挂起25秒
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("服务器启动", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("服务器关闭中...")

	// 停掉推进引擎和后台刷新
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// 优雅关闭服务器
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器强制关闭", logger.ErrorField(err))
		return
	}
	logger.Info("服务器已停止")
}

func ensureDirExists(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			logger.Fatal("创建目录失败", logger.String("path", path), logger.ErrorField(err))
		}
	}
}
