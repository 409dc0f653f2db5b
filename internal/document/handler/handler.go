package handler

import (
	"errors"
	"net/http"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/service"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RegisterDocumentRoutes mounts the document CRUD endpoints under rg
// (usually the /api/v1 group).
func RegisterDocumentRoutes(rg gin.IRouter, svc service.Service) {
	r := rg.Group("/documents")

	r.GET("", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			out = append(out, gin.H{"id": d.ID, "name": d.Name, "revision": d.Revision, "origin": d.Origin, "updatedAt": d.UpdatedAt})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("", func(c *gin.Context) {
		var req struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d := &document.Document{Name: req.Name, Content: req.Content}
		id, err := svc.Create(c.Request.Context(), d)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "name": d.Name})
	})

	r.GET("/:id", func(c *gin.Context) {
		d, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.PATCH("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var req struct {
			Name    *string `json:"name,omitempty"`
			Content string  `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Update(c.Request.Context(), id, req.Content, req.Name); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	r.DELETE("/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidDoc):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("document request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
