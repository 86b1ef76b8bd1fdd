package main

import (
	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/database/kafka"
	"Minerva_2.0/internal/database/milvus"
	"Minerva_2.0/internal/database/mongo"
	"Minerva_2.0/internal/database/redis"
	"Minerva_2.0/internal/discovery/etcd"
	"Minerva_2.0/internal/dispatcher"
	"Minerva_2.0/internal/embedding"
	"Minerva_2.0/internal/llm"
	"Minerva_2.0/internal/memory"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/orchestrator"
	"Minerva_2.0/internal/registry"
	"Minerva_2.0/internal/supervisor/api"
	"Minerva_2.0/internal/supervisor/publisher"
	"Minerva_2.0/internal/supervisor/service"
	"Minerva_2.0/internal/supervisor/store"
	"Minerva_2.0/pkg/circuitbreaker"
	pkghttp "Minerva_2.0/pkg/http"
	"Minerva_2.0/pkg/logger"
	"Minerva_2.0/pkg/ratelimiter"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("internal/config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Logger.Level)
	serviceLogger := logger.New("Supervisor", "", "")

	// Load the static agent catalog
	reg, err := registry.Load(cfg.Registry, serviceLogger)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to load agent registry")
	}

	// Optional etcd service discovery for dynamic agent addresses
	var discovery *etcd.ServiceDiscovery
	if cfg.Databases.Etcd.Enabled {
		discovery, err = etcd.NewServiceDiscovery(cfg.Databases.Etcd.Endpoints, cfg.Databases.Etcd.Prefix)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Failed to connect to etcd")
		}
		reg = reg.WithDiscovery(discovery)
		serviceLogger.Info("Etcd service discovery enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background health monitor
	healthInterval, err := time.ParseDuration(cfg.Registry.HealthInterval)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Invalid registry health interval")
	}
	reg.StartMonitor(ctx, healthInterval)

	// Routing model
	model, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create LLM client")
	}

	// Long-term memory stores, selected by driver
	var exactStore memory.ExactStore
	switch cfg.Memory.Exact.Driver {
	case "redis":
		redisClient, err := redis.GetClient(&cfg.Databases.Redis)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Failed to connect to Redis")
		}
		exactStore = memory.NewRedisExactStore(redisClient)
		serviceLogger.Info("Exact memory store backed by Redis")
	default:
		exactStore = memory.NewInMemoryExactStore()
	}

	var semanticStore memory.SemanticStore
	var milvusClient *milvus.MilvusClient
	switch cfg.Memory.Semantic.Driver {
	case "milvus":
		milvusClient, err = milvus.GetClient(ctx, &cfg.Databases.Milvus)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Failed to connect to Milvus")
		}
		if err := milvusClient.EnsureCollection(ctx); err != nil {
			serviceLogger.WithError(err).Fatal("Failed to prepare Milvus collection")
		}
		semanticStore = memory.NewMilvusSemanticStore(milvusClient)
		serviceLogger.Info("Semantic memory store backed by Milvus")
	default:
		semanticStore = memory.NewInMemorySemanticStore()
	}

	// The embedder is only needed when an agent opts into semantic memory.
	var embedder memory.Embedder
	for _, agent := range reg.ListAgents() {
		if agent.Memory == models.MemoryStrategySemantic {
			emb, err := embedding.NewEmdModel(cfg.Embedding)
			if err != nil {
				serviceLogger.WithError(err).Fatal("Failed to create embedding model")
			}
			embedder = emb
			break
		}
	}

	stm := memory.NewShortTermMemory(cfg.Memory.STM.Capacity)
	ltm := memory.NewLongTermMemory(exactStore, semanticStore, embedder, cfg.Memory.Semantic.MaxDistance, cfg.Memory.Semantic.TopK, serviceLogger)

	// Worker HTTP client, optionally wrapped by a circuit breaker
	workerTimeout, err := time.ParseDuration(cfg.Dispatcher.WorkerTimeout)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Invalid worker timeout")
	}
	var breaker circuitbreaker.CircuitBreaker
	if cfg.Middleware.CircuitBreaker.Enabled {
		breakerTimeout, err := time.ParseDuration(cfg.Middleware.CircuitBreaker.Timeout)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Invalid circuit breaker timeout")
		}
		breaker = circuitbreaker.New(cfg.Middleware.CircuitBreaker.FailureThreshold, cfg.Middleware.CircuitBreaker.SuccessThreshold, breakerTimeout)
	}
	workerClient := dispatcher.NewWorkerClient(pkghttp.NewClient(workerTimeout, breaker))

	// Core components
	orch, err := orchestrator.New(reg, model, cfg.Orchestrator, serviceLogger)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create orchestrator")
	}
	disp := dispatcher.New(reg, workerClient, stm, ltm, cfg.Dispatcher.SenderID, serviceLogger)

	// Optional task persistence
	var recorder store.TaskRecorder = store.NoopTaskRecorder{}
	if cfg.Databases.MongoDB.Enabled {
		mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Failed to connect to MongoDB")
		}
		db := mongoClient.Database(cfg.Databases.MongoDB.Database)
		recorder = store.NewMongoTaskStore(db, cfg.Databases.MongoDB.Collection)
		serviceLogger.Info("Task persistence enabled")
	}

	// Optional completion event stream
	var eventPublisher publisher.EventPublisher = publisher.NoopEventPublisher{}
	if cfg.Databases.Kafka.Enabled {
		kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Failed to connect to Kafka")
		}
		eventPublisher = publisher.NewKafkaEventPublisher(kafkaClient, serviceLogger)
		serviceLogger.Info("Completion event publishing enabled")
	}

	chatService := service.NewChatService(orch, disp, reg, stm, recorder, eventPublisher, serviceLogger)

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(chatService, serviceLogger)
	var limiter ratelimiter.RateLimiter
	if cfg.Middleware.RateLimiter.Enabled {
		limiter = ratelimiter.NewTokenBucket(cfg.Middleware.RateLimiter.TokenBucket.Rate, cfg.Middleware.RateLimiter.TokenBucket.Capacity)
	}
	api.RegisterRoutes(router, apiHandler, limiter)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(err).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	cancel()
	if cfg.Memory.Exact.Driver == "redis" {
		if err := redis.Close(); err != nil {
			serviceLogger.WithError(err).Error("Error closing Redis client")
		}
	}
	if milvusClient != nil {
		milvusClient.Close()
	}
	if cfg.Databases.MongoDB.Enabled {
		if err := mongo.Close(context.Background()); err != nil {
			serviceLogger.WithError(err).Error("Error disconnecting from MongoDB")
		}
	}
	if cfg.Databases.Kafka.Enabled {
		if err := kafka.Close(); err != nil {
			serviceLogger.WithError(err).Error("Error closing Kafka publisher")
		}
	}
	if discovery != nil {
		if err := discovery.Close(); err != nil {
			serviceLogger.WithError(err).Error("Error closing etcd client")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}
