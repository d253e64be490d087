package detection

import (
	"FaunaVision/internal/entity"
	"FaunaVision/pkg/inference"
)

// ImageInput is one named image submitted for detection. It is immutable once
// built from the request; the bytes are dropped when its result is produced.
type ImageInput struct {
	Name string
	Data []byte
}

type BatchRequest struct {
	ModelID string
	Images  []ImageInput
}

// ImageResult is the outcome for exactly one submitted image. Error is the
// authoritative outcome indicator: when set, Annotations is empty and the
// rest of the batch is unaffected.
type ImageResult struct {
	ImageName   string              `json:"image_name"`
	Annotations []entity.Annotation `json:"annotations"`
	Error       string              `json:"error,omitempty"`
}

type BatchResult struct {
	Results        []ImageResult `json:"results"`
	ModelUsed      string        `json:"model_used"`
	TotalProcessed int           `json:"total_processed"`
}

type DetectResponse struct {
	Annotations []entity.Annotation `json:"annotations"`
	ModelUsed   string              `json:"model_used"`
}

type ModelsResponse struct {
	Models []inference.ModelInfo `json:"models"`
}

type HistoryResponse struct {
	Jobs []entity.DetectionJob `json:"jobs"`
}
