package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/policydesk/api/docs"
	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/handler"
	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/internal/middleware"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/service"
	ws "github.com/policydesk/api/internal/websocket"
	"github.com/policydesk/api/internal/worker"
)

// @title          Policy Desk API
// @version        1.0
// @description    Console backend for rendering and publishing policy tables through the relay.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey GatewayUser
// @in             header
// @name           X-User-Id
// @description    User id set by the gateway
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize validator
	validate := service.NewValidator()

	// Initialize relay side
	relay := client.NewRelayClient(&cfg.Relay)
	if !relay.IsConfigured() {
		log.Fatalf("Relay base URL is not configured")
	}
	gate := service.NewRelayGate("relay", cfg.Batch.SettleDelay)
	submitter := service.NewSubmitter(relay, validate)
	poller := service.NewPoller(relay, cfg.Poll)
	orchestrator := service.NewOrchestrator(submitter, poller, gate)

	// Optional artifact mirror
	var mirror service.Mirror
	if r2, err := client.NewR2Client(&cfg.R2); err != nil {
		log.Printf("Artifact mirror disabled: %v", err)
	} else {
		mirror = client.NewArtifactMirror(r2)
		log.Printf("Artifact mirror enabled (bucket %s)", cfg.R2.BucketName)
	}
	registrar := service.NewRegistrar(relay, mirror, cfg.Batch.RegisterConcurrency)

	prefs := service.NewPreferenceService(redisClient)
	queue := service.InstanceQueue(instanceName(cfg.Server.Instance))
	dispatcher := service.NewAsynqDispatcher(asynqClient, queue, cfg.Batch.TaskTimeout)

	// Initialize WebSocket hub
	var batches *service.BatchService
	hub := ws.NewHub(func(batchID string) (model.BatchSnapshot, bool) {
		snap, err := batches.Snapshot(batchID, identity.Identity{})
		return snap, err == nil
	})
	go hub.Run(ctx)

	batches = service.NewBatchService(orchestrator, registrar, dispatcher, hub, prefs, validate)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-User-Id,X-User-Email,X-User-Name",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"relayBusy":   gate.Busy(),
			"openBatches": len(batches.List(identity.Identity{})),
		})
	})

	handler.Routes{
		Jobs:        handler.NewJobHandler(submitter, poller, registrar, validate),
		Batches:     handler.NewBatchHandler(batches, hub),
		Preferences: handler.NewPreferenceHandler(prefs, validate),
		Policy:      handler.NewPolicyHandler(),
		Identity:    middleware.GatewayIdentity(cfg.Gateway.Enabled),
		SubmitLimit: rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour),
		BatchLimit:  rateLimiter.BatchLimit(cfg.RateLimit.BatchPerHour),
		Docs:        fiberSwagger.HandlerDefault,
	}.Mount(app)

	// Start Asynq worker server
	workerSrv := newWorkerServer(cfg, redisOpt, queue)
	go func() {
		mux := asynq.NewServeMux()
		worker.NewBatchWorker(batches).Register(mux)
		if err := workerSrv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		batches.Shutdown()
		workerSrv.Shutdown()
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// newWorkerServer consumes this process's batch queue
func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, queue string) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Batch.WorkerConcurrency,
		Queues: map[string]int{
			queue: 1,
		},
		LogLevel:        asynqLogLevel(cfg.Server.LogLevel),
		ShutdownTimeout: 5 * time.Second,
	})
}

func instanceName(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return uuid.New().String()
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
