package entity

import "time"

// BoundingBox is a top-left-origin pixel rectangle. Width and height come
// from backend corner coordinates truncated toward zero; a backend reporting
// x2 < x1 yields a degenerate box which is recorded as-is for review.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Annotation is one AI-proposed detection. Verified stays false until a human
// reviewer confirms it in the frontend; the core never sets it.
type Annotation struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Source     string      `json:"source"`
	Visible    bool        `json:"visible"`
	Verified   bool        `json:"verified"`
}

const AnnotationSourceAI = "ai"

// DetectionJob is the persisted record of one processed image, kept so
// reviewers can revisit past batches.
type DetectionJob struct {
	ID              string    `json:"id"`
	ModelID         string    `json:"model_id"`
	ImageName       string    `json:"image_name"`
	ImageURL        string    `json:"image_url,omitempty"`
	AnnotationCount int       `json:"annotation_count"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
