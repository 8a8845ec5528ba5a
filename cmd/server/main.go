package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"study-ai/internal/api"
	"study-ai/internal/config"
	"study-ai/internal/db"
	"study-ai/internal/logger"
	"study-ai/internal/ollama"
	"study-ai/internal/services"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		zl.Fatal("open database", zap.String("path", cfg.Database), zap.Error(err))
	}
	defer conn.Close()

	aiService := services.NewAIService(newGenerator(cfg), cfg.LLMTimeout, zl.Named("ai"))
	startupCheck(aiService, zl)

	var cache services.ResponseCache
	if cfg.RedisAddr != "" {
		redisCache := services.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		defer redisCache.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisCache.Ping(ctx); err != nil {
			zl.Warn("redis unreachable, responses will not be cached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			cache = redisCache
			zl.Info("response cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
		}
		cancel()
	}

	studyService := services.NewStudyService(aiService, cache, zl.Named("study"))
	flashcardService := services.NewFlashcardService(conn)
	quizService := services.NewQuizService(conn)
	documentService := services.NewDocumentService(conn, services.NewPDFService(), cfg.UploadDir)

	server := api.NewServer(studyService, flashcardService, quizService, documentService, api.Options{
		Logger:        zl.Named("http"),
		GenerateRate:  cfg.GenerateRate,
		GenerateBurst: cfg.GenerateBurst,
	})
	mux := http.NewServeMux()

	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		zl.Info("static directory not found, serving API only", zap.String("dir", cfg.StaticDir))
	}
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
	}

	go func() {
		zl.Info("listening", zap.String("addr", srv.Addr), zap.String("provider", cfg.LLMProvider), zap.String("model", aiService.Model()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zl.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newGenerator(cfg config.Config) services.TextGenerator {
	if cfg.LLMProvider == "openai" {
		return services.NewOpenAIGenerator(cfg.OpenAIKey, cfg.OpenAIEndpoint, cfg.OpenAIModel)
	}
	client := ollama.NewClient(ollama.ClientConfig{
		BaseURL:      cfg.OllamaHost,
		Timeout:      cfg.LLMTimeout,
		DefaultModel: cfg.OllamaModel,
		MaxRetries:   cfg.LLMMaxRetries,
		RetryDelay:   cfg.LLMRetryDelay,
	})
	return services.NewOllamaGenerator(client, cfg.OllamaStream)
}

// startupCheck only warns: the server still starts so the UI can report the
// backend as disconnected.
func startupCheck(ai *services.AIService, zl *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ai.Ping(ctx); err != nil {
		zl.Warn("language model backend not reachable, start it with 'ollama serve'", zap.String("model", ai.Model()), zap.Error(err))
		return
	}
	zl.Info("language model backend connected", zap.String("model", ai.Model()))
}
