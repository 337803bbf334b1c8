package main

import (
	"context"
	"log"
	"os"
	"time"

	"aichatgo/internal/api"
	"aichatgo/internal/auth"
	"aichatgo/internal/config"
	"aichatgo/internal/moderation"
	"aichatgo/internal/ratelimit"
	"aichatgo/internal/redis"
	"aichatgo/internal/service/ai"
	"aichatgo/internal/service/chat"
	"aichatgo/internal/storage"
	"aichatgo/internal/store"

	"github.com/gin-gonic/gin"
	"google.golang.org/genai"
)

func main() {
	cfgPath := os.Getenv("AICHATGO_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("AICHATGO_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var cache *redis.Client
	if cfg.Redis.Host != "" {
		cache, err = redis.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer cache.Close()
	} else {
		log.Printf("redis not configured, rate limiting disabled")
	}

	ctx := context.Background()
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.Providers["gemini"].APIKey,
	})
	if err != nil {
		log.Fatalf("create genai client: %v", err)
	}
	gate := moderation.NewGate(genaiClient, cfg.Moderation.Model)

	generator, err := ai.NewService(ctx, cfg)
	if err != nil {
		log.Fatalf("init generation service: %v", err)
	}

	st := store.New(db)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	authService := auth.NewService(st, tokens)
	chatService := chat.NewService(st, gate, generator)
	limiter := ratelimit.New(cache, 10, time.Minute)
	handlers := api.NewHandler(authService, chatService, limiter)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8000"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
