package detection

import (
	"FaunaVision/pkg/response"
	"net/http"
)

var (
	ErrNoImageUploaded     = response.NewError(http.StatusBadRequest, "no image uploaded")
	ErrNoImagesUploaded    = response.NewError(http.StatusBadRequest, "no images uploaded")
	ErrUnknownModel        = response.NewError(http.StatusBadRequest, "invalid or unavailable model")
	ErrNoModelsAvailable   = response.NewError(http.StatusInternalServerError, "no models available")
	ErrScheduleFailed      = response.NewError(http.StatusInternalServerError, "failed to schedule detection tasks")
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
)
