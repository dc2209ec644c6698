package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"login-server/internal/config"
	"login-server/internal/database"
	"login-server/internal/handler"
	"login-server/internal/messaging"
	"login-server/internal/middleware"
	"login-server/internal/repository"
	"login-server/internal/server"
	"login-server/internal/service"
	"login-server/internal/settings"
	"login-server/internal/worker"
	"login-server/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	startedAt := time.Now()

	// --- Configuration ---
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
		FilePath: cfg.LogFile,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- Lua Settings ---
	engine, err := settings.Load(cfg.SettingsRoot, log)
	if err != nil {
		zap.L().Fatal("Failed to load settings", zap.Error(err))
	}
	logStartupNotices(engine)

	game, err := gameSettings(engine)
	if err != nil {
		zap.L().Fatal("Invalid login settings", zap.Error(err))
	}

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgPool, err := setupPostgres(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	if err := database.ApplyMigrations(ctx, pgPool); err != nil {
		zap.L().Fatal("Failed to apply migrations", zap.Error(err))
	}
	database.RunStartupMaintenance(ctx, pgPool, log)

	redisClient, err := setupRedis(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	// --- Dependency Injection ---
	accountRepo := repository.NewPgAccountRepository(pgPool, log.Named("PgAccountRepo"))
	auctionRepo := repository.NewPgAuctionRepository(pgPool, log.Named("PgAuctionRepo"))
	sessionRepo := repository.NewRedisSessionRepository(redisClient, game.SessionTTL, log.Named("RedisSessionRepo"))

	authSvc := service.NewAuthService(accountRepo, sessionRepo, cfg, game, log)

	itemReturns, err := messaging.NewItemReturnPublisher(mqConn, log)
	if err != nil {
		zap.L().Fatal("Failed to create item return publisher", zap.Error(err))
	}

	expiryCfg, err := worker.ExpiryConfigFromSettings(engine)
	if err != nil {
		zap.L().Fatal("Invalid auction expiry settings", zap.Error(err))
	}
	expiryWorker := worker.NewAuctionExpiryWorker(expiryCfg, auctionRepo, itemReturns, log)
	expiryWorker.Start()

	banConsumer, err := messaging.NewAccountBanConsumer(mqConn, authSvc, log)
	if err != nil {
		zap.L().Fatal("Failed to create AccountBanConsumer", zap.Error(err))
	}
	go func() {
		if err := banConsumer.StartConsuming(); err != nil {
			zap.L().Error("AccountBanConsumer stopped with error", zap.Error(err))
		}
	}()

	// --- TCP Login Frontend ---
	listenCfg, err := server.ListenConfigFromSettings(engine, log)
	if err != nil {
		zap.L().Fatal("Invalid network settings", zap.Error(err))
	}
	tcpServer := server.New(listenCfg, authSvc, log)
	if err := tcpServer.Start(); err != nil {
		zap.L().Fatal("Failed to start login server", zap.Error(err))
	}

	// --- HTTP Status/Admin API (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Admin-Secret"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	statusHandler := handler.NewStatusHandler(authSvc, accountRepo, sessionRepo, auctionRepo,
		cfg.AdminSecret, startedAt, log)
	statusHandler.RegisterRoutes(router)
	handler.RegisterSessionsGauge(sessionRepo)

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.StatusPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP status server", zap.String("port", cfg.StatusPort))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	if err := banConsumer.Stop(); err != nil {
		zap.L().Error("Error stopping AccountBanConsumer", zap.Error(err))
	}
	expiryWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tcpServer.Stop(shutdownCtx); err != nil {
		zap.L().Error("Login server forced to shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting", zap.Duration("uptime", time.Since(startedAt).Round(time.Second)))
}

// gameSettings pulls the login section out of the settings engine.
func gameSettings(engine *settings.Engine) (service.GameSettings, error) {
	var game service.GameSettings
	var err error

	if game.AccountCreationEnabled, err = engine.GetBool("login.ACCOUNT_CREATION"); err != nil {
		return game, err
	}
	if game.LogUserIP, err = engine.GetBool("login.LOG_USER_IP"); err != nil {
		return game, err
	}
	if game.SessionTTL, err = engine.GetSeconds("login.SESSION_TTL"); err != nil {
		return game, err
	}
	if game.SessionTTL <= 0 {
		return game, fmt.Errorf("login.SESSION_TTL must be positive, got %s", game.SessionTTL)
	}
	return game, nil
}

// logStartupNotices warns about disabled account features so operators
// see the state of the toggles in the log.
func logStartupNotices(engine *settings.Engine) {
	if enabled, err := engine.GetBool("login.ACCOUNT_CREATION"); err == nil && !enabled {
		zap.L().Warn("New account creation is disabled (login.ACCOUNT_CREATION)")
	}
	// Older settings trees predate this key, so only complain when it
	// is present and turned off.
	if !engine.Has("login.CHARACTER_DELETION") {
		return
	}
	if enabled, err := engine.GetBool("login.CHARACTER_DELETION"); err == nil && !enabled {
		zap.L().Warn("Character deletion is disabled (login.CHARACTER_DELETION)")
	}
}

// setupPostgres initializes the PostgreSQL connection pool with retry
// logic.
func setupPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	zap.L().Debug("Setting up PostgreSQL connection...")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	zap.L().Info("Attempting to connect to PostgreSQL",
		zap.Int("max_retries", maxRetries), zap.Duration("retry_delay", retryDelay))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		connectCancel()

		if err != nil {
			lastErr = fmt.Errorf("unable to create postgres connection pool (attempt %d/%d): %w", attempt, maxRetries, err)
			zap.L().Warn("Postgres connection pool creation failed, retrying...",
				zap.Int("attempt", attempt), zap.Error(err))
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err = pool.Ping(pingCtx)
		pingCancel()

		if err == nil {
			zap.L().Info("Successfully connected and pinged PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}

		pool.Close()
		lastErr = fmt.Errorf("unable to ping postgres database (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Postgres ping failed, retrying...",
			zap.Int("attempt", attempt), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxRetries, lastErr)
}

// setupRedis initializes the Redis client with retry logic.
func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	zap.L().Debug("Setting up Redis connection...")
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var client *redis.Client
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	zap.L().Info("Attempting to connect to Redis",
		zap.String("address", redisOpts.Addr), zap.Int("db", redisOpts.DB),
		zap.Int("max_retries", maxRetries), zap.Duration("retry_delay", retryDelay))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		client = redis.NewClient(redisOpts)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := client.Ping(pingCtx).Result()
		pingCancel()

		if err == nil {
			zap.L().Info("Successfully connected and pinged Redis", zap.Int("attempt", attempt))
			return client, nil
		}

		client.Close()
		lastErr = fmt.Errorf("unable to ping redis (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Redis ping failed, retrying...",
			zap.Int("attempt", attempt), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ connects with retries and logs unexpected connection
// loss.
func connectRabbitMQ(amqpURL string, log *zap.Logger) (*amqp091.Connection, error) {
	var conn *amqp091.Connection
	var err error
	maxRetries := 50
	retryDelay := 5 * time.Second

	log.Info("Attempting to connect to RabbitMQ",
		zap.String("url", maskRabbitMQURL(amqpURL)),
		zap.Int("max_retries", maxRetries), zap.Duration("retry_delay", retryDelay))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		conn, err = amqp091.Dial(amqpURL)
		if err == nil {
			log.Info("Successfully connected to RabbitMQ", zap.Int("attempt", attempt))
			go func() {
				notifyClose := make(chan *amqp091.Error)
				conn.NotifyClose(notifyClose)
				if closeErr := <-notifyClose; closeErr != nil {
					log.Error("RabbitMQ connection closed unexpectedly", zap.Error(closeErr))
				}
			}()
			return conn, nil
		}
		log.Warn("RabbitMQ connection failed, retrying...",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// maskRabbitMQURL hides the password so the URL can be logged.
func maskRabbitMQURL(amqpURL string) string {
	parsed, err := url.Parse(amqpURL)
	if err != nil {
		return "invalid-url"
	}
	return parsed.Redacted()
}
