package detectionService

import (
	"FaunaVision/internal/api/detection"
	detectionRepository "FaunaVision/internal/api/detection/repository"
	"FaunaVision/pkg/inference"
	"FaunaVision/pkg/pool"
	redisPkg "FaunaVision/pkg/redis"
	s3Pkg "FaunaVision/pkg/s3"
	"FaunaVision/pkg/scratch"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IDetectionService interface {
	Detect(ctx context.Context, modelID string, image detection.ImageInput) (*detection.DetectResponse, error)
	DetectBatch(ctx context.Context, req detection.BatchRequest) (*detection.BatchResult, error)
	ProcessFrame(ctx context.Context, frame []byte) (*detection.DetectResponse, error)
	ListModels() detection.ModelsResponse
	History(ctx context.Context, modelID string, limit int) (*detection.HistoryResponse, error)
}

type detectionService struct {
	log      *logrus.Logger
	registry inference.ModelRegistry
	pool     *pool.WorkerPool
	scratch  *scratch.Manager
	cache    redisPkg.IRedis
	repo     detectionRepository.Repository
	s3Client s3Pkg.ItfS3
}

func NewDetectionService(
	log *logrus.Logger,
	registry inference.ModelRegistry,
	workerPool *pool.WorkerPool,
	scratchManager *scratch.Manager,
	cache redisPkg.IRedis,
	repo detectionRepository.Repository,
	s3Client s3Pkg.ItfS3,
) IDetectionService {
	return &detectionService{
		log:      log,
		registry: registry,
		pool:     workerPool,
		scratch:  scratchManager,
		cache:    cache,
		repo:     repo,
		s3Client: s3Client,
	}
}
