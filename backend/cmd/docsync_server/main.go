package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docSyncServer/backend/config"
	"docSyncServer/backend/internal/cache"
	"docSyncServer/backend/internal/collab"
	"docSyncServer/backend/internal/contrib"
	"docSyncServer/backend/internal/httpapi"
	"docSyncServer/backend/internal/httpapi/handlers"
	"docSyncServer/backend/internal/httpapi/middleware"
	"docSyncServer/backend/internal/logging"
	"docSyncServer/backend/internal/metrics"
	"docSyncServer/backend/internal/repo"
	"docSyncServer/backend/internal/share"
	"docSyncServer/backend/internal/store"
	"docSyncServer/backend/internal/version"
	"docSyncServer/backend/internal/ws"
)

type stores struct {
	versions repo.VersionRepo
	shares   repo.ShareRepo
	docs     repo.DocumentStore
	users    repo.UserStore
	closers  []func() error
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Storage.Driver != config.DriverMySQL {
		dir := store.NewMemoryDirectory()
		for _, d := range cfg.Storage.Documents {
			dir.AddDocument(d.ID, d.Owner)
		}
		for _, u := range cfg.Storage.Users {
			dir.AddUser(u)
		}
		logger.Info("storage_memory", zap.Int("documents", len(cfg.Storage.Documents)), zap.Int("users", len(cfg.Storage.Users)))
		return &stores{
			versions: store.NewMemoryVersionStore(),
			shares:   store.NewMemoryShareStore(),
			docs:     dir,
			users:    dir,
		}, nil
	}

	gdb, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		return nil, fmt.Errorf("init gorm: %w", err)
	}
	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	shareStore := store.NewShareStore(db)
	if err := shareStore.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("share schema: %w", err)
	}
	s := &stores{
		versions: store.NewGormVersionStore(gdb),
		shares:   shareStore,
		docs:     store.NewDocumentStore(db),
		users:    store.NewUserStore(db),
		closers:  []func() error{db.Close},
	}
	if raw, err := gdb.DB(); err == nil {
		s.closers = append(s.closers, raw.Close)
	}
	logger.Info("storage_mysql")
	return s, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config_loaded", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage_init_failed", zap.Error(err))
	}
	defer func() {
		for _, c := range st.closers {
			_ = c()
		}
	}()

	// Redis 可选：在线状态 + 分享权限缓存
	var (
		presence cache.PresenceCache
		perms    cache.PermissionCache
	)
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis_connect_failed", zap.Strings("addrs", cfg.Redis.Addrs), zap.Error(err))
		}
		defer rdb.Close()
		presence = cache.NewRedisPresence(rdb)
		perms = cache.NewRedisPermission(rdb)
	}

	// Kafka 可选：领域事件
	var events collab.EventSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			logger.Fatal("kafka_connect_failed", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		dispatcher := collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(cfg.Kafka.MaxInFlight),
			collab.KafkaDispatcherOptions{
				QueueSize:   cfg.Kafka.QueueSize,
				Workers:     cfg.Kafka.Workers,
				MaxRetry:    cfg.Kafka.MaxRetry,
				BaseBackoff: cfg.Kafka.BaseBackoff,
				MaxBackoff:  cfg.Kafka.MaxBackoff,
			},
			logger,
		)
		// 先排空队列再关 producer
		defer producer.Close()
		defer dispatcher.Close()
		events = dispatcher
	}

	metrics.Register(prometheus.DefaultRegisterer)

	versions := version.NewService(st.versions, logger)
	gate := share.NewGate(st.shares, st.docs, st.users, perms, logger)
	svc := collab.NewService(gate, versions, collab.Options{
		SubscriberBuffer: cfg.Collab.SubscriberBuffer,
		Events:           events,
		Log:              logger,
	})
	manager := ws.NewManager(svc, gate, presence, collab.NewSemaphoreControl(cfg.Collab.MaxConcurrent), ws.Options{
		EditRate:     cfg.Collab.EditRate,
		EditBurst:    cfg.Collab.EditBurst,
		AllowOrigins: cfg.Collab.AllowOrigins,
	}, logger)
	h := handlers.New(svc, gate, versions, contrib.NewAggregator(versions), presence, logger)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := httpapi.NewRouter(httpapi.RouterConfig{
		Auth:         middleware.AuthConfig{Path: cfg.Auth.Path, Secret: cfg.Auth.Secret},
		AllowOrigins: cfg.Collab.AllowOrigins,
		Metrics:      prometheus.DefaultGatherer,
	}, h, manager.WebSocketConnect, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Running.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http_listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
}
