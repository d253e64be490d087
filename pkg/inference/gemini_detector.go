package inference

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"FaunaVision/pkg/gemini"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/context"
)

const detectionPrompt = `
	Identifikasi semua hewan pada gambar kamera jebak ini dan berikan hasilnya dalam format JSON.

	Untuk setiap hewan, laporkan kotak pembatas dalam piksel absolut (x1,y1 = pojok kiri atas, x2,y2 = pojok kanan bawah),
	nama spesies dalam bahasa Inggris, dan tingkat keyakinan antara 0 dan 1.

	Format output yang diinginkan:
	{
		"detections": [
			{
				"x1": 10,
				"y1": 20,
				"x2": 210,
				"y2": 180,
				"label": "zebra",
				"confidence": 0.92
			}
		]
	}

	Jika tidak ada hewan, kembalikan {"detections": []}.
	Berikan HANYA respons JSON, tanpa teks tambahan apapun.
	`

// GeminiDetector uses an LLM vision model as a detection backend. Slower and
// less precise than the YOLO sidecars, but covers species they were never
// trained on.
type GeminiDetector struct {
	name   string
	client gemini.IGemini
}

func NewGeminiDetector(name string, client gemini.IGemini) *GeminiDetector {
	return &GeminiDetector{
		name:   name,
		client: client,
	}
}

func (d *GeminiDetector) Name() string {
	return d.name
}

func (d *GeminiDetector) Detect(ctx context.Context, imagePath string) ([]RawDetection, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	base64Image := base64.StdEncoding.EncodeToString(imageData)

	response, err := d.client.AnalyzeImage(ctx, base64Image, detectionPrompt)
	if err != nil {
		return nil, err
	}

	return parseDetectionResponse(response)
}

func parseDetectionResponse(response string) ([]RawDetection, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, errors.New("cannot find valid JSON in response")
	}

	jsonStr := response[jsonStart : jsonEnd+1]

	var result struct {
		Detections []RawDetection `json:"detections"`
	}
	if err := jsoniter.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, errors.New("failed to parse model response as valid JSON")
	}

	// The model occasionally reports confidence as a percentage.
	for i := range result.Detections {
		if result.Detections[i].Confidence > 1 {
			result.Detections[i].Confidence /= 100
		}
	}

	return result.Detections, nil
}
