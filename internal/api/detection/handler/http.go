package detectionHandler

import (
	detectionService "FaunaVision/internal/api/detection/service"
	"FaunaVision/internal/middleware"
	"FaunaVision/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
) *DetectionHandler {
	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Get("/models", h.ListModels)
	srv.Post("/detect", h.Detect)
	srv.Post("/detect/batch", h.DetectBatch)
	srv.Get("/history", h.History)

	stream := srv.Group("/stream")
	stream.Use("/ws", wsMiddleware)
	stream.Get("/ws", websocket.New(h.handleStreamWebSocket))
}
