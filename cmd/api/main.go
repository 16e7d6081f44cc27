package main

import (
	"context"
	"log"

	"market-chat/config"
	"market-chat/internal/handler"
	marketredis "market-chat/internal/redis"
	"market-chat/internal/repository"
	"market-chat/internal/server"
	"market-chat/internal/services"
	"market-chat/internal/ws"
	"market-chat/pkg/database"
	"market-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	logMode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		logMode = logger.ProductionMode
	}
	l := logger.New(logMode)
	logger.SetGlobalLogger(l)

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := database.ApplyRawMigrations(ctx, pool, "migrations"); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := marketredis.NewClient(marketredis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := marketredis.NewRateLimiter(redisClient, marketredis.DefaultRateLimitConfig())

	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	productRepo := repository.NewProductRepository(pool)

	authService := services.NewAuthService(cfg.JWTSecret)
	conversationService := services.NewConversationService(conversationRepo, productRepo)
	messageService := services.NewMessageService(messageRepo)

	hub := ws.NewHub(l)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Chat: handler.NewChatHandler(conversationService, messageService, limiter),
		WS:   ws.NewHandler(hub, authService, limiter, l),
	}, authService, pool)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
