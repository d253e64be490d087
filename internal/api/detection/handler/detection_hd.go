package detectionHandler

import (
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"FaunaVision/internal/api/detection"
	contextPkg "FaunaVision/pkg/context"
	"FaunaVision/pkg/handlerUtil"
	"FaunaVision/pkg/log"
	"FaunaVision/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

const batchTimeout = 120 * time.Second

func (h *DetectionHandler) ListModels(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, h.detectionService.ListModels())
}

func (h *DetectionHandler) Detect(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), batchTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing detection request")

	file, err := ctx.FormFile("image")
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrNoImageUploaded, ctx.Path(), "read_image_file")
	}

	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, response.NewError(fiber.StatusBadRequest, err.Error()), ctx.Path(), "validate_image_file")
	}

	image, err := readImageInput(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image_bytes")
	}

	result, err := h.detectionService.Detect(c, ctx.FormValue("model"), image)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":  requestID,
			"path":        ctx.Path(),
			"annotations": len(result.Annotations),
			"model":       result.ModelUsed,
		}).Info("Detection successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *DetectionHandler) DetectBatch(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), batchTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing batch detection request")

	form, err := ctx.MultipartForm()
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrNoImagesUploaded, ctx.Path(), "parse_multipart_form")
	}

	files := form.File["images"]
	if len(files) == 0 {
		return errHandler.Handle(ctx, requestID, detection.ErrNoImagesUploaded, ctx.Path(), "read_image_files")
	}

	images := make([]detection.ImageInput, 0, len(files))
	for _, file := range files {
		if err := h.utils.ValidateImageFile(file); err != nil {
			return errHandler.Handle(ctx, requestID, response.NewError(fiber.StatusBadRequest, err.Error()), ctx.Path(), "validate_image_file")
		}

		image, err := readImageInput(file)
		if err != nil {
			return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image_bytes")
		}
		images = append(images, image)
	}

	result, err := h.detectionService.DetectBatch(c, detection.BatchRequest{
		ModelID: ctx.FormValue("model"),
		Images:  images,
	})
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect_batch")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"processed":  result.TotalProcessed,
			"model":      result.ModelUsed,
		}).Info("Batch detection successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

type historyQuery struct {
	Model string `validate:"omitempty,max=64"`
	Limit int    `validate:"gte=0,lte=500"`
}

func (h *DetectionHandler) History(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	limit, _ := strconv.Atoi(ctx.Query("limit"))
	query := historyQuery{Model: ctx.Query("model"), Limit: limit}
	if err := h.validator.Struct(query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	result, err := h.detectionService.History(c, query.Model, query.Limit)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "history")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
}

func (h *DetectionHandler) handleStreamWebSocket(c *websocket.Conn) {
	h.log.Info("Detection stream client connected")
	defer h.log.Info("Detection stream client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	maxReadTimeout := 60 * time.Second

	for {
		if err := c.SetReadDeadline(time.Now().Add(maxReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Errorf("Detection stream error: %v", err)
			} else {
				h.log.Info("Detection stream connection closed")
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		streamCtx, cancel := context.WithTimeout(context.Background(), batchTimeout)
		result, err := h.detectionService.ProcessFrame(streamCtx, message)
		cancel()

		if err != nil {
			if writeErr := c.WriteJSON(map[string]string{"error": err.Error()}); writeErr != nil {
				h.log.Errorf("Error sending error response: %v", writeErr)
				break
			}
			continue
		}

		if err := c.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(result); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			h.log.Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}

func readImageInput(file *multipart.FileHeader) (detection.ImageInput, error) {
	src, err := file.Open()
	if err != nil {
		return detection.ImageInput{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return detection.ImageInput{}, err
	}

	return detection.ImageInput{Name: file.Filename, Data: data}, nil
}
