package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopkart/checkout-service/internal/backend"
	"github.com/shopkart/checkout-service/internal/gateway"
	h "github.com/shopkart/checkout-service/internal/http"
	"github.com/shopkart/checkout-service/internal/orchestrator"
	"github.com/shopkart/checkout-service/internal/publisher"
	"github.com/shopkart/checkout-service/internal/repository"
	"github.com/shopkart/checkout-service/internal/staging"
)

type Config struct {
	HTTPPort        string
	BackendURL      string
	RedisAddr       string
	KafkaBrokers    []string
	JWTSecret       string
	RazorpayKeyID   string
	RazorpaySecret  string
	StoreName       string
	RequestTimeout  time.Duration
	VerifyTimeout   time.Duration
	ShutdownTimeout time.Duration
	DB              *repository.Credentials
}

func loadConfig() *Config {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		log.Fatalf("Invalid DB_PORT: %v", err)
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		BackendURL:      getEnv("BACKEND_URL", "http://localhost:3000/api"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		RazorpayKeyID:   getEnv("RAZORPAY_KEY_ID", ""),
		RazorpaySecret:  getEnv("RAZORPAY_KEY_SECRET", ""),
		StoreName:       getEnv("STORE_NAME", "Shopkart"),
		RequestTimeout:  45 * time.Second,
		VerifyTimeout:   30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		DB: &repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "shopkart"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log.Println("checkout-service starting...")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg := loadConfig()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Database setup
	repo, err := repository.NewRepository(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(cfg.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Redis staging store
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	stagingStore := staging.NewRedisStore(redisClient)
	log.Printf("Connected to redis at %s", cfg.RedisAddr)

	// Commerce backend
	backendClient := backend.New(cfg.BackendURL, cfg.RequestTimeout)

	// Session minting goes straight to Razorpay when this service holds the
	// credentials; otherwise the backend mints on our behalf.
	var minter orchestrator.SessionMinter = backendClient
	if cfg.RazorpayKeyID != "" {
		minter = gateway.NewRazorpayMinter(cfg.RazorpayKeyID, cfg.RazorpaySecret)
		log.Println("Minting gateway sessions directly via Razorpay")
	}

	orch := orchestrator.New(stagingStore, backendClient, minter, repo, orchestrator.Config{
		SignatureSecret: cfg.RazorpaySecret,
		VerifyTimeout:   cfg.VerifyTimeout,
		StoreName:       cfg.StoreName,
	})

	// Outbox publishing and stuck-verification recovery
	pollerCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	poller := publisher.NewOutboxPoller(repo, cfg.VerifyTimeout, cfg.KafkaBrokers...)
	go poller.Run(pollerCtx)

	checkoutHandler := h.NewCheckoutHandler(orch, cfg.RequestTimeout)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware(cfg.JWTSecret))
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Stage)
			r.Get("/", checkoutHandler.GetStaged)
			r.Delete("/", checkoutHandler.Abandon)
			r.Post("/pay", checkoutHandler.Pay)
			r.Post("/payment/callback", checkoutHandler.PaymentCallback)
			r.Post("/payment/cancel", checkoutHandler.PaymentCancel)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "checkout-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Checkout service listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stopPoller()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
