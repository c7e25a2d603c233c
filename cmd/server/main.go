package main

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusgig/messaging/internal/application"
	"github.com/campusgig/messaging/internal/auth"
	"github.com/campusgig/messaging/internal/cache"
	"github.com/campusgig/messaging/internal/config"
	"github.com/campusgig/messaging/internal/dispatcher"
	"github.com/campusgig/messaging/internal/handler"
	"github.com/campusgig/messaging/internal/kafka"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/outbox"
	"github.com/campusgig/messaging/internal/presence"
	"github.com/campusgig/messaging/internal/repository"
	"github.com/campusgig/messaging/internal/repository/badgerstore"
	"github.com/campusgig/messaging/internal/repository/postgres"
	"github.com/campusgig/messaging/internal/router"
	"github.com/campusgig/messaging/internal/server"
	grpc_transport "github.com/campusgig/messaging/internal/transport/grpc"
	"github.com/campusgig/messaging/internal/tx"
	"github.com/campusgig/messaging/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type store struct {
	repo  repository.Repository
	tx    tx.Transactor
	ping  func(ctx context.Context) error
	close func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Observability
	log := observability.InitLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error("failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	instanceID := getOrGenerateInstanceID(cfg.InstanceID)
	log.Info("instance", zap.String("instance_id", instanceID), zap.String("store", cfg.StoreDriver))

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = initRedis(ctx, cfg.RedisAddr, log)
		defer redisClient.Close()
	}

	st := initStore(ctx, cfg, redisClient, log)
	defer st.close()

	app := application.New(st.repo, st.tx, log)

	// Outbox relay
	var publisher outbox.Publisher = outbox.LogPublisher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer, err := kafka.NewProducer(brokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal("kafka producer failed", zap.Error(err))
		}
		defer producer.Close()
		publisher = producer
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events are only logged")
	}

	worker := &outbox.Worker{
		Tx:         st.tx,
		Producer:   publisher,
		BatchSize:  cfg.OutboxBatchSize,
		PollDelay:  cfg.OutboxPollDelay,
		MaxRetries: cfg.OutboxMaxRetries,
	}
	go worker.Start(ctx)

	// Event channel
	reg := websocket.NewRegistry()
	var disp *dispatcher.Dispatcher
	var wsHandler *websocket.Handler
	if redisClient != nil {
		pres := presence.New(redisClient, instanceID)
		rtr := router.New(redisClient, instanceID)
		disp = dispatcher.New(reg, pres, rtr, instanceID)
		if err := rtr.Subscribe(ctx, disp.DeliverRemote); err != nil {
			log.Fatal("router subscribe failed", zap.Error(err))
		}
		wsHandler = websocket.NewHandler(reg, pres, disp)
	} else {
		log.Warn("REDIS_ADDR not set, pushes reach sessions on this instance only")
		disp = dispatcher.New(reg, nil, nil, instanceID)
		wsHandler = websocket.NewHandler(reg, nil, disp)
	}

	// Servers
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	mainRouter := handler.NewRouter(handler.NewMessageHandler(app), wsHandler, verifier, app, st.ping, cfg)
	mainSrv := server.New("main", cfg.HTTPAddr, mainRouter)
	obsSrv := server.New("observability", cfg.ObsHTTPAddr, initObservabilityRouter(cfg, st.ping))
	grpcSrv := initHealthGRPC(ctx, cfg, st.ping, log)

	startServers(mainSrv, obsSrv, log)

	<-ctx.Done()
	performGracefulShutdown(mainSrv, obsSrv, grpcSrv, reg, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func getOrGenerateInstanceID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func initRedis(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return client
}

func initStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log *zap.Logger) *store {
	switch cfg.StoreDriver {
	case config.DriverBadger:
		bs, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			log.Fatal("badger open failed", zap.Error(err), zap.String("path", cfg.BadgerPath))
		}
		return &store{
			repo: bs,
			tx:   bs,
			ping: bs.Ping,
			close: func() {
				if err := bs.Close(); err != nil {
					log.Error("badger close failed", zap.Error(err))
				}
			},
		}

	default:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(mctx, db); err != nil {
			log.Fatal("db migration failed", zap.Error(err))
		}

		repo := &postgres.Repository{DB: db}
		if redisClient != nil {
			repo.Cache = &cache.UserCache{R: redisClient}
		}
		return &store{
			repo:  repo,
			tx:    repo.NewTransactor(),
			ping:  repo.Ping,
			close: func() { db.Close() },
		}
	}
}

func initObservabilityRouter(cfg *config.Config, ready func(ctx context.Context) error) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(observability.MetricsMiddleware(cfg.ServiceName))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler(ready))
	return mux
}

func initHealthGRPC(ctx context.Context, cfg *config.Config, ready func(ctx context.Context) error, log *zap.Logger) *grpc_transport.Server {
	srv := grpc_transport.New(cfg.ServiceName)
	srv.Watch(ctx, 10*time.Second, ready)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc health server error", zap.Error(err))
		}
	}()
	return srv
}

func startServers(mainSrv, obsSrv *server.Server, log *zap.Logger) {
	go func() {
		if err := obsSrv.Start(); err != nil {
			log.Error("observability server error", zap.Error(err))
		}
	}()
	go func() {
		if err := mainSrv.Start(); err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	}()
}

func performGracefulShutdown(mainSrv, obsSrv *server.Server, grpcSrv *grpc_transport.Server, reg *websocket.Registry, log *zap.Logger) {
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg.CloseAll()
	if err := mainSrv.Shutdown(ctx); err != nil {
		log.Error("error during main server shutdown", zap.Error(err))
	}
	if err := obsSrv.Shutdown(ctx); err != nil {
		log.Error("error during observability server shutdown", zap.Error(err))
	}
	grpcSrv.Stop()
	log.Info("shutdown complete, exiting")
}
