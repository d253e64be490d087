package config

import (
	"FaunaVision/database/postgres"
	detectionHandler "FaunaVision/internal/api/detection/handler"
	detectionRepository "FaunaVision/internal/api/detection/repository"
	detectionService "FaunaVision/internal/api/detection/service"
	"FaunaVision/internal/middleware"
	"FaunaVision/pkg/inference"
	"FaunaVision/pkg/pool"
	"FaunaVision/pkg/redis"
	"FaunaVision/pkg/s3"
	"FaunaVision/pkg/scratch"
	"FaunaVision/pkg/utils"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine        *fiber.App
	db            *sqlx.DB
	log           *logrus.Logger
	middleware    middleware.Middleware
	validator     *validator.Validate
	utils         utils.IUtils
	handlers      []handler
	modelRegistry inference.ModelRegistry
	workerPool    *pool.WorkerPool
	scratch       *scratch.Manager
	redisCache    redis.IRedis
	s3Client      s3.ItfS3
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.modelRegistry == nil {
		return nil, fmt.Errorf("model registry is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects to postgres. The database backs review history only,
// so an unreachable database degrades the server instead of failing it: the
// detection service runs without persistence.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Warnf("Database unavailable, review history disabled: %v", err)
			}
			return nil
		}
		s.db = db
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithModelRegistry(registry inference.ModelRegistry) ServerOption {
	return func(s *Server) error {
		s.modelRegistry = registry
		return nil
	}
}

func WithWorkerPool(workerPool *pool.WorkerPool) ServerOption {
	return func(s *Server) error {
		s.workerPool = workerPool
		return nil
	}
}

func WithScratchManager(manager *scratch.Manager) ServerOption {
	return func(s *Server) error {
		s.scratch = manager
		return nil
	}
}

func WithRedisCache(cache redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisCache = cache
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		if os.Getenv("AWS_BUCKET_NAME") == "" {
			if s.log != nil {
				s.log.Warn("AWS_BUCKET_NAME unset, image archiving disabled")
			}
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Detection. The repository is optional; without a database the service
	// skips review history and job persistence.
	var detectionRepo detectionRepository.Repository
	if s.db != nil {
		detectionRepo = detectionRepository.New(s.db, s.log)
	}
	detectionServices := detectionService.NewDetectionService(
		s.log,
		s.modelRegistry,
		s.workerPool,
		s.scratch,
		s.redisCache,
		detectionRepo,
		s.s3Client,
	)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, detectionHandlers)
}

func (s *Server) Run() error {
	router := s.engine.Group("/api/v1")
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(middleware.LoggerConfig())
	s.engine.Use(s.middleware.NewRateLimiter)

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	if err := s.engine.Listen(fmt.Sprintf(":%s", port)); err != nil {
		s.workerPool.Shutdown()
		return err
	}

	return nil
}

func (s *Server) Shutdown() {
	if s.workerPool != nil {
		s.workerPool.Shutdown()
	}
	if closer, ok := s.modelRegistry.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		body := fiber.Map{
			"message": "Server is Healthy!",
			"models":  s.modelRegistry.Len(),
		}

		if s.workerPool != nil {
			inFlight, peak, submitted, completed := s.workerPool.Metrics()
			body["workers"] = fiber.Map{
				"size":      s.workerPool.Size(),
				"in_flight": inFlight,
				"peak":      peak,
				"submitted": submitted,
				"completed": completed,
			}
		}

		return ctx.JSON(body)
	})
}
