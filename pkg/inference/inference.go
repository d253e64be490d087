package inference

import (
	"golang.org/x/net/context"
)

// RawDetection is one detection as reported by a backend: absolute pixel
// corner coordinates, the class label and the model's confidence.
type RawDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Detector is the boundary to one detection backend. Detect must be safe to
// call from multiple goroutines; implementations that wrap a non-reentrant
// transport serialize internally.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]RawDetection, error)
	Name() string
}

type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelRegistry is the read-only view the request path gets of the loaded
// models. It is constructed once at startup and never mutated afterwards.
type ModelRegistry interface {
	Get(id string) (Detector, bool)
	DefaultID() string
	Len() int
	List() []ModelInfo
}
