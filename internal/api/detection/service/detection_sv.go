package detectionService

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"FaunaVision/internal/api/detection"
	"FaunaVision/internal/entity"
	contextPkg "FaunaVision/pkg/context"
	"FaunaVision/pkg/inference"
	"FaunaVision/pkg/log"
	"FaunaVision/pkg/response"
	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"
	"golang.org/x/net/context"
)

const resultCacheTTL = time.Hour

func (s *detectionService) ListModels() detection.ModelsResponse {
	return detection.ModelsResponse{Models: s.registry.List()}
}

func (s *detectionService) Detect(ctx context.Context, modelID string, image detection.ImageInput) (*detection.DetectResponse, error) {
	if len(image.Data) == 0 {
		return nil, detection.ErrNoImageUploaded
	}

	detector, resolvedID, err := s.resolveModel(modelID)
	if err != nil {
		return nil, err
	}

	result := s.runTask(ctx, resolvedID, image)
	s.persistResults(ctx, resolvedID, []detection.ImageInput{image}, []detection.ImageResult{result})

	if result.Error != "" {
		return nil, response.NewError(http.StatusInternalServerError, result.Error)
	}

	return &detection.DetectResponse{
		Annotations: result.Annotations,
		ModelUsed:   detector.Name(),
	}, nil
}

// DetectBatch runs one detection task per image over the shared worker pool.
// Each task writes its result into the slot matching its submission index, so
// the response order always equals the submission order no matter which task
// finishes first. A failing image contributes an error result; only usage
// errors and scheduling failures abort the batch.
func (s *detectionService) DetectBatch(ctx context.Context, req detection.BatchRequest) (*detection.BatchResult, error) {
	if len(req.Images) == 0 {
		return nil, detection.ErrNoImagesUploaded
	}

	detector, resolvedID, err := s.resolveModel(req.ModelID)
	if err != nil {
		return nil, err
	}

	requestID := contextPkg.GetRequestID(ctx)
	s.log.WithFields(log.Fields{
		"request_id": requestID,
		"model":      resolvedID,
		"images":     len(req.Images),
	}).Info("Starting batch detection")

	results := make([]detection.ImageResult, len(req.Images))
	var wg sync.WaitGroup

	for i := range req.Images {
		index := i
		image := req.Images[i]

		wg.Add(1)
		submitErr := s.pool.Submit(ctx, func() {
			defer wg.Done()
			results[index] = s.runTask(ctx, resolvedID, image)
		})
		if submitErr != nil {
			wg.Done()

			// A request that ran out of time is not a pool fault: the images
			// that never got scheduled report a contained error and the work
			// already done is kept.
			if errors.Is(submitErr, context.Canceled) || errors.Is(submitErr, context.DeadlineExceeded) {
				results[index] = detection.ImageResult{
					ImageName: image.Name,
					Error:     fmt.Sprintf("detection failed: %v", submitErr),
				}
				continue
			}

			// Tasks already submitted keep running; wait them out so their
			// scratch files are released before the batch fails.
			wg.Wait()
			s.log.WithFields(log.Fields{
				"request_id": requestID,
				"error":      submitErr.Error(),
			}).Error("Failed to schedule detection task")
			return nil, detection.ErrScheduleFailed
		}
	}

	wg.Wait()

	s.persistResults(ctx, resolvedID, req.Images, results)

	return &detection.BatchResult{
		Results:        results,
		ModelUsed:      detector.Name(),
		TotalProcessed: len(results),
	}, nil
}

// ProcessFrame serves the streaming endpoint: one binary frame in, the
// default model's detections out.
func (s *detectionService) ProcessFrame(ctx context.Context, frame []byte) (*detection.DetectResponse, error) {
	return s.Detect(ctx, "", detection.ImageInput{Name: "frame.jpg", Data: frame})
}

func (s *detectionService) History(ctx context.Context, modelID string, limit int) (*detection.HistoryResponse, error) {
	if s.repo == nil {
		return &detection.HistoryResponse{Jobs: []entity.DetectionJob{}}, nil
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}

	var jobs []entity.DetectionJob
	if modelID != "" {
		jobs, err = client.Job.GetJobsByModel(ctx, modelID, limit)
	} else {
		jobs, err = client.Job.GetRecentJobs(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	// Archived images live in a private bucket; reviewers get short-lived
	// presigned links instead of the raw object URLs.
	if s.s3Client != nil {
		for i := range jobs {
			if jobs[i].ImageURL == "" {
				continue
			}
			signed, signErr := s.s3Client.PresignUrl(jobs[i].ImageURL)
			if signErr != nil {
				s.log.Warnf("Failed to presign archived image url: %v", signErr)
				continue
			}
			jobs[i].ImageURL = signed
		}
	}

	return &detection.HistoryResponse{Jobs: jobs}, nil
}

// resolveModel applies the batch-level usage checks: an empty registry and an
// unknown identifier both reject the request before any task starts. An empty
// identifier falls back to the first configured model.
func (s *detectionService) resolveModel(modelID string) (inference.Detector, string, error) {
	if s.registry.Len() == 0 {
		return nil, "", detection.ErrNoModelsAvailable
	}

	if modelID == "" {
		modelID = s.registry.DefaultID()
	}

	detector, ok := s.registry.Get(modelID)
	if !ok {
		return nil, "", detection.ErrUnknownModel
	}

	return detector, modelID, nil
}

// runTask is the contained unit of work for one image. It never propagates a
// failure to the dispatcher: backend, storage and normalization errors all
// end up in the result's Error field with the annotations left empty.
func (s *detectionService) runTask(ctx context.Context, modelID string, image detection.ImageInput) (result detection.ImageResult) {
	result.ImageName = image.Name

	defer func() {
		if r := recover(); r != nil {
			result.Annotations = nil
			result.Error = fmt.Sprintf("detection failed: %v", r)
		}
	}()

	// Re-checked per task: the registry can race a batch-level check only if
	// it were mutable, but a missing model here must still stay contained.
	detector, ok := s.registry.Get(modelID)
	if !ok {
		result.Error = fmt.Sprintf("model unavailable: %s", modelID)
		return result
	}

	cacheKey := fmt.Sprintf("detections:%s:%x", modelID, sha256.Sum256(image.Data))
	if cached, ok := s.cachedAnnotations(ctx, cacheKey); ok {
		result.Annotations = cached
		return result
	}

	file, err := s.scratch.Create(image.Name, image.Data)
	if err != nil {
		result.Error = fmt.Sprintf("storage failure: %v", err)
		return result
	}
	defer func() {
		if err := s.scratch.Remove(file); err != nil {
			s.log.WithFields(log.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"image":      image.Name,
				"error":      err.Error(),
			}).Warn("Failed to remove scratch file")
		}
	}()

	raw, err := detector.Detect(ctx, file.Path())
	if err != nil {
		result.Error = fmt.Sprintf("detection failed: %v", err)
		return result
	}

	result.Annotations = buildAnnotations(raw)
	s.storeAnnotations(ctx, cacheKey, result.Annotations)

	return result
}

// buildAnnotations normalizes raw corner-coordinate detections into the
// annotation shape the review frontend consumes. IDs are unique per image,
// not globally.
func buildAnnotations(raw []inference.RawDetection) []entity.Annotation {
	annotations := make([]entity.Annotation, 0, len(raw))
	for i, d := range raw {
		annotations = append(annotations, entity.Annotation{
			ID:         fmt.Sprintf("ai-%d", i+1),
			Label:      d.Label,
			Confidence: d.Confidence,
			BBox: entity.BoundingBox{
				X:      int(d.X1),
				Y:      int(d.Y1),
				Width:  int(d.X2 - d.X1),
				Height: int(d.Y2 - d.Y1),
			},
			Source:   entity.AnnotationSourceAI,
			Visible:  true,
			Verified: false,
		})
	}
	return annotations
}

func (s *detectionService) cachedAnnotations(ctx context.Context, key string) ([]entity.Annotation, bool) {
	if s.cache == nil {
		return nil, false
	}

	payload, err := s.cache.GetResult(ctx, key)
	if err != nil {
		return nil, false
	}

	var annotations []entity.Annotation
	if err := jsoniter.UnmarshalFromString(payload, &annotations); err != nil {
		return nil, false
	}

	return annotations, true
}

func (s *detectionService) storeAnnotations(ctx context.Context, key string, annotations []entity.Annotation) {
	if s.cache == nil {
		return
	}

	payload, err := jsoniter.MarshalToString(annotations)
	if err != nil {
		return
	}

	if err := s.cache.SetResult(ctx, key, payload, resultCacheTTL); err != nil {
		s.log.Warnf("Failed to cache detection result: %v", err)
	}
}

// persistResults archives images and records one job row per result. Both are
// best effort; review history must never fail a detection that succeeded.
func (s *detectionService) persistResults(ctx context.Context, modelID string, images []detection.ImageInput, results []detection.ImageResult) {
	if s.repo == nil {
		return
	}

	requestID := contextPkg.GetRequestID(ctx)

	client, err := s.repo.NewClient(false)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to open repository client for detection jobs")
		return
	}

	for i, result := range results {
		job := entity.DetectionJob{
			ID:              ulid.Make().String(),
			ModelID:         modelID,
			ImageName:       result.ImageName,
			AnnotationCount: len(result.Annotations),
			Error:           result.Error,
			CreatedAt:       time.Now(),
		}

		if s.s3Client != nil && result.Error == "" {
			url, uploadErr := s.s3Client.UploadImage(images[i].Name, images[i].Data)
			if uploadErr != nil {
				s.log.WithFields(log.Fields{
					"request_id": requestID,
					"image":      images[i].Name,
					"error":      uploadErr.Error(),
				}).Warn("Failed to archive image")
			} else {
				job.ImageURL = url
			}
		}

		if err := client.Job.CreateJob(ctx, job); err != nil {
			s.log.WithFields(log.Fields{
				"request_id": requestID,
				"image":      result.ImageName,
				"error":      err.Error(),
			}).Error("Failed to persist detection job")
		}
	}
}
