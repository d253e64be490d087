package detectionHandler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"FaunaVision/internal/api/detection"
	"FaunaVision/internal/entity"
	"FaunaVision/internal/middleware"
	"FaunaVision/pkg/inference"
	"FaunaVision/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type fakeDetectionService struct {
	detectFn func(ctx context.Context, modelID string, image detection.ImageInput) (*detection.DetectResponse, error)
	batchFn  func(ctx context.Context, req detection.BatchRequest) (*detection.BatchResult, error)
	models   detection.ModelsResponse
}

func (s *fakeDetectionService) Detect(ctx context.Context, modelID string, image detection.ImageInput) (*detection.DetectResponse, error) {
	return s.detectFn(ctx, modelID, image)
}

func (s *fakeDetectionService) DetectBatch(ctx context.Context, req detection.BatchRequest) (*detection.BatchResult, error) {
	return s.batchFn(ctx, req)
}

func (s *fakeDetectionService) ProcessFrame(ctx context.Context, frame []byte) (*detection.DetectResponse, error) {
	return s.detectFn(ctx, "", detection.ImageInput{Name: "frame.jpg", Data: frame})
}

func (s *fakeDetectionService) ListModels() detection.ModelsResponse {
	return s.models
}

func (s *fakeDetectionService) History(_ context.Context, _ string, _ int) (*detection.HistoryResponse, error) {
	return &detection.HistoryResponse{Jobs: []entity.DetectionJob{}}, nil
}

func newTestApp(t *testing.T, svc *fakeDetectionService) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	handler := New(logger, validator.New(), middleware.New(logger), svc, utils.New())
	handler.Start(app.Group("/api/v1"))

	return app
}

func addImagePart(t *testing.T, w *multipart.Writer, field, filename, contentType string, data []byte) {
	t.Helper()

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("creating multipart part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing multipart part: %v", err)
	}
}

func TestDetectBatchEndpoint(t *testing.T) {
	var received detection.BatchRequest
	svc := &fakeDetectionService{
		batchFn: func(_ context.Context, req detection.BatchRequest) (*detection.BatchResult, error) {
			received = req
			results := make([]detection.ImageResult, 0, len(req.Images))
			for _, img := range req.Images {
				results = append(results, detection.ImageResult{
					ImageName:   img.Name,
					Annotations: []entity.Annotation{},
				})
			}
			return &detection.BatchResult{
				Results:        results,
				ModelUsed:      "Zebra Model",
				TotalProcessed: len(results),
			}, nil
		},
	}
	app := newTestApp(t, svc)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("model", "zebra"); err != nil {
		t.Fatalf("writing model field: %v", err)
	}
	addImagePart(t, w, "images", "a.jpg", "image/jpeg", []byte("first"))
	addImagePart(t, w, "images", "b.jpg", "image/jpeg", []byte("second"))
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/detect/batch", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if received.ModelID != "zebra" {
		t.Fatalf("expected model id zebra, got %q", received.ModelID)
	}
	if len(received.Images) != 2 || received.Images[0].Name != "a.jpg" || received.Images[1].Name != "b.jpg" {
		t.Fatalf("unexpected images passed to service: %+v", received.Images)
	}
	if string(received.Images[0].Data) != "first" {
		t.Fatalf("unexpected image bytes: %q", received.Images[0].Data)
	}

	var result detection.BatchResult
	if err := jsoniter.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.TotalProcessed != 2 || len(result.Results) != 2 {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if result.ModelUsed != "Zebra Model" {
		t.Fatalf("unexpected model_used: %q", result.ModelUsed)
	}
}

func TestDetectBatchRequiresImages(t *testing.T) {
	svc := &fakeDetectionService{
		batchFn: func(_ context.Context, _ detection.BatchRequest) (*detection.BatchResult, error) {
			t.Fatal("service must not be called without images")
			return nil, nil
		},
	}
	app := newTestApp(t, svc)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("model", "zebra"); err != nil {
		t.Fatalf("writing model field: %v", err)
	}
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/detect/batch", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDetectBatchRejectsNonImageUpload(t *testing.T) {
	svc := &fakeDetectionService{
		batchFn: func(_ context.Context, _ detection.BatchRequest) (*detection.BatchResult, error) {
			t.Fatal("service must not be called for invalid uploads")
			return nil, nil
		},
	}
	app := newTestApp(t, svc)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	addImagePart(t, w, "images", "notes.txt", "text/plain", []byte("not an image"))
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/detect/batch", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDetectBatchSurfacesUsageErrors(t *testing.T) {
	svc := &fakeDetectionService{
		batchFn: func(_ context.Context, _ detection.BatchRequest) (*detection.BatchResult, error) {
			return nil, detection.ErrUnknownModel
		},
	}
	app := newTestApp(t, svc)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	addImagePart(t, w, "images", "a.jpg", "image/jpeg", []byte("first"))
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/detect/batch", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown model, got %d", resp.StatusCode)
	}

	var errBody map[string]string
	if err := jsoniter.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatal("expected error message in body")
	}
}

func TestDetectEndpoint(t *testing.T) {
	svc := &fakeDetectionService{
		detectFn: func(_ context.Context, modelID string, image detection.ImageInput) (*detection.DetectResponse, error) {
			if modelID != "zebra" {
				t.Errorf("expected model zebra, got %q", modelID)
			}
			if image.Name != "herd.jpg" {
				t.Errorf("expected image herd.jpg, got %q", image.Name)
			}
			return &detection.DetectResponse{
				Annotations: []entity.Annotation{{ID: "ai-1", Label: "zebra"}},
				ModelUsed:   "Zebra Model",
			}, nil
		},
	}
	app := newTestApp(t, svc)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("model", "zebra"); err != nil {
		t.Fatalf("writing model field: %v", err)
	}
	addImagePart(t, w, "image", "herd.jpg", "image/jpeg", []byte("pixels"))
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result detection.DetectResponse
	if err := jsoniter.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(result.Annotations) != 1 || result.Annotations[0].ID != "ai-1" {
		t.Fatalf("unexpected annotations: %+v", result.Annotations)
	}
}

func TestDetectRequiresImage(t *testing.T) {
	svc := &fakeDetectionService{
		detectFn: func(_ context.Context, _ string, _ detection.ImageInput) (*detection.DetectResponse, error) {
			t.Fatal("service must not be called without an image")
			return nil, nil
		},
	}
	app := newTestApp(t, svc)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHistoryRejectsInvalidLimit(t *testing.T) {
	app := newTestApp(t, &fakeDetectionService{})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/history?limit=-5", nil)

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	app := newTestApp(t, &fakeDetectionService{})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/history?limit=10", nil)

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var history detection.HistoryResponse
	if err := jsoniter.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if history.Jobs == nil {
		t.Fatal("expected empty jobs list, got null")
	}
}

func TestListModelsEndpoint(t *testing.T) {
	svc := &fakeDetectionService{
		models: detection.ModelsResponse{
			Models: []inference.ModelInfo{
				{ID: "zebra", Name: "Zebra Model"},
				{ID: "plains", Name: "Plains Model"},
			},
		},
	}
	app := newTestApp(t, svc)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/models", nil)

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var models detection.ModelsResponse
	if err := jsoniter.NewDecoder(resp.Body).Decode(&models); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(models.Models) != 2 || models.Models[0].ID != "zebra" {
		t.Fatalf("unexpected models: %+v", models.Models)
	}
}
