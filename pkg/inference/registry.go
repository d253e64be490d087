package inference

import (
	"os"
	"strings"
	"time"

	"FaunaVision/pkg/gemini"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// modelTable lists every model the service knows how to serve. Each entry is
// activated only when its sidecar URL is configured, so a partially deployed
// environment still starts with whatever subset is reachable.
var modelTable = []struct {
	id          string
	name        string
	description string
	envURL      string
}{
	{
		id:          "mdv6-yolov9",
		name:        "MDV6 YOLOv9-C",
		description: "General wildlife detection model",
		envURL:      "MDV6_INFERENCE_URL",
	},
	{
		id:          "mugie-grevys-plains",
		name:        "Mugie Grevy's & Plains",
		description: "Specialized for Grevy's zebras and plains animals",
		envURL:      "MUGIE_GREVYS_PLAINS_INFERENCE_URL",
	},
	{
		id:          "mugie-zebra",
		name:        "Mugie Zebra",
		description: "Specialized for zebra detection",
		envURL:      "MUGIE_ZEBRA_INFERENCE_URL",
	},
}

// Registry maps model identifiers to their backends. It is built once at
// startup and never mutated afterwards, so request-time lookups need no
// locking.
type Registry struct {
	detectors map[string]Detector
	info      map[string]ModelInfo
	order     []string
}

func NewRegistry(log *logrus.Logger, geminiClient gemini.IGemini) *Registry {
	r := &Registry{
		detectors: make(map[string]Detector),
		info:      make(map[string]ModelInfo),
	}

	for _, m := range modelTable {
		url := os.Getenv(m.envURL)
		if url == "" {
			log.Warnf("Model %s not configured (%s unset), skipping", m.id, m.envURL)
			continue
		}

		var det Detector
		if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
			det = NewWSDetector(m.name, url, log)
		} else {
			httpDet := NewHTTPDetector(m.name, url)
			go func(name string) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpDet.CheckHealth(ctx); err != nil {
					log.Warnf("Health check for %s failed: %v. Will serve requests anyway.", name, err)
				}
			}(m.name)
			det = httpDet
		}

		r.add(m.id, ModelInfo{ID: m.id, Name: m.name, Description: m.description}, det)
		log.Infof("Loaded model: %s", m.name)
	}

	if geminiClient != nil {
		const id = "gemini-vision"
		r.add(id, ModelInfo{
			ID:          id,
			Name:        "Gemini Vision",
			Description: "LLM-based detection for images the specialized models miss",
		}, NewGeminiDetector("Gemini Vision", geminiClient))
		log.Infof("Loaded model: Gemini Vision")
	}

	log.Infof("Successfully loaded %d out of %d models", len(r.order), len(modelTable))
	return r
}

func (r *Registry) add(id string, info ModelInfo, det Detector) {
	r.detectors[id] = det
	r.info[id] = info
	r.order = append(r.order, id)
}

func (r *Registry) Get(id string) (Detector, bool) {
	det, ok := r.detectors[id]
	return det, ok
}

// DefaultID returns the first configured model, mirroring the behavior of
// clients that omit the model field.
func (r *Registry) DefaultID() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Close releases backend connections held open by detectors, such as the
// websocket ones. Safe to call once at shutdown.
func (r *Registry) Close() {
	for _, det := range r.detectors {
		if c, ok := det.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func (r *Registry) List() []ModelInfo {
	models := make([]ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		models = append(models, r.info[id])
	}
	return models
}
