package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"FaunaVision/internal/config"
	"FaunaVision/pkg/gemini"
	"FaunaVision/pkg/inference"
	"FaunaVision/pkg/log"
	"FaunaVision/pkg/pool"
	"FaunaVision/pkg/redis"
	"FaunaVision/pkg/scratch"
	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Warnf("Error loading .env file: %v", err)
	}

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()

	var geminiClient gemini.IGemini
	if os.Getenv("GEMINI_API_KEY") != "" {
		client, err := gemini.NewGeminiClient()
		if err != nil {
			logger.Warnf("Failed to create Gemini client: %v", err)
		} else {
			geminiClient = client
		}
	}

	logger.Info("Loading detection models...")
	registry := inference.NewRegistry(logger, geminiClient)

	workers, _ := strconv.Atoi(os.Getenv("DETECTION_WORKERS"))
	workerPool := pool.New(workers)
	redisCache := redis.New()

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithDatabase(),
		config.WithMiddleware(),
		config.WithModelRegistry(registry),
		config.WithWorkerPool(workerPool),
		config.WithScratchManager(scratch.New()),
		config.WithRedisCache(redisCache),
		config.WithS3Client(),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")
	server.Shutdown()
	if closer, ok := geminiClient.(interface{ Close() }); ok {
		closer.Close()
	}
}
