package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cashcached/auth-api/internal/application/audit"
	"github.com/cashcached/auth-api/internal/config"
	"github.com/cashcached/auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/cashcached/auth-api/internal/infrastructure/jwt"
	"github.com/cashcached/auth-api/internal/infrastructure/kv"
	"github.com/cashcached/auth-api/internal/infrastructure/smtp"
	"github.com/cashcached/auth-api/internal/infrastructure/sns"
	transporthttp "github.com/cashcached/auth-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Redis backs sessions, OTP codes, and the login audit trail.
	redisClient, err := kv.NewRedisClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("redis unavailable: %v", err)
	}
	store := kv.NewRedisStore(redisClient)
	auditLog := audit.NewRedisLog(redisClient)

	// Bootstrap the credential-store table (creates it if missing).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.UsersTable)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}

	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback to email-only OTP delivery).
	deps := &transporthttp.Deps{
		UserRepo:    dynamo.NewUserRepo(dynamoClient, cfg.UsersTable),
		KV:          store,
		Audit:       auditLog,
		Mailer:      mailer,
		JWTProvider: jwtProvider,
	}
	if sender, err := sns.NewSender(cfg); err == nil {
		deps.SMSSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
	_ = redisClient.Close()
}
