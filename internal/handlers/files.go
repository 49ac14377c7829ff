package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"dm-service/internal/blobstore"
)

// BlobReader reads stored uploads back.
type BlobReader interface {
	Get(folder, key string) ([]byte, error)
}

// FileHandler serves uploaded files by the URL the blob store handed out.
type FileHandler struct {
	blobs BlobReader
}

func NewFileHandler(blobs BlobReader) *FileHandler {
	return &FileHandler{blobs: blobs}
}

func (h *FileHandler) Serve(c *gin.Context) {
	data, err := h.blobs.Get(c.Param("folder"), c.Param("key"))
	if errors.Is(err, blobstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return
	}

	contentType := mime.TypeByExtension(path.Ext(c.Param("key")))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}
