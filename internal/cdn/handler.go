package cdn

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes serves stored resources under /cdn/*path, the same layout
// the importer fetches from remote instances.
func RegisterRoutes(r gin.IRouter, store ResourceStore) {
	r.GET("/cdn/*path", func(c *gin.Context) {
		p, err := CleanPath(c.Param("path"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rc, err := store.Open(c.Request.Context(), p)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			logger.Errorf("open cdn resource %s: %v", p, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		defer rc.Close()

		ct := mime.TypeByExtension(path.Ext(p))
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.Header("Content-Type", ct)
		c.Header("Cache-Control", "public, max-age=86400")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, rc); err != nil {
			logger.Warnf("stream cdn resource %s: %v", p, err)
		}
	})
}
