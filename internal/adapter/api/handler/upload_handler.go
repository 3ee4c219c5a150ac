package handler

import (
	"github.com/labstack/echo/v4"

	"chatrelay/internal/infrastructure/storage"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/response"
)

const maxUploadSize = 5 << 20 // 5 MB

type UploadHandler struct {
	storageClient *storage.CloudStorageClient
}

func NewUploadHandler(storageClient *storage.CloudStorageClient) *UploadHandler {
	return &UploadHandler{
		storageClient: storageClient,
	}
}

// UploadImage stores a chat image and returns its URL. The URL is what image
// messages carry; message payloads never embed raw bytes.
func (h *UploadHandler) UploadImage(c echo.Context) error {
	return h.upload(c, "chat-images")
}

// UploadAvatar stores a profile picture; the returned URL goes into the
// profile update endpoint.
func (h *UploadHandler) UploadAvatar(c echo.Context) error {
	return h.upload(c, "avatars")
}

func (h *UploadHandler) upload(c echo.Context, folder string) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("File is required", err))
	}
	if fileHeader.Size > maxUploadSize {
		return response.Error(c, errors.BadRequest("File exceeds the 5MB limit", nil))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.Internal("Failed to read uploaded file", err))
	}
	defer src.Close()

	userID := c.Get("uid").(string)
	contentType := fileHeader.Header.Get("Content-Type")

	url, err := h.storageClient.UploadImage(c.Request().Context(), src, contentType, folder+"/"+userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"url": url})
}
