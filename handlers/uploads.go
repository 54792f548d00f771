package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const uploadField = "fichier"

// readUpload returns the multipart file sent under "fichier".
func readUpload(c *gin.Context, maxBytes int64) ([]byte, string, bool) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		badRequest(c, "missing file field "+uploadField)
		return nil, "", false
	}
	if header.Size > maxBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, "", false
	}
	f, err := header.Open()
	if err != nil {
		abortWithError(c, err)
		return nil, "", false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		abortWithError(c, err)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (h *Handler) requireStorage(c *gin.Context) bool {
	if h.Storage == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "file storage is not configured"})
		return false
	}
	return true
}

func sendFile(c *gin.Context, contentType string, filename string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
