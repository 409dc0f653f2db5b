package handler

import (
	"errors"
	"net/http"
	"slices"

	"github.com/coursebay/coursebay/backend/go-services/internal/task"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/coursebay/coursebay/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

type createBatchRequest struct {
	BatchType        task.BatchType    `json:"batchType" binding:"required"`
	ImportSourceName string            `json:"importSourceName"`
	Documents        []task.ImportItem `json:"documents" binding:"dive"`
}

// RegisterTaskRoutes mounts the batch and task endpoints under rg. admin is
// applied to the mutating routes.
func RegisterTaskRoutes(rg gin.IRouter, svc *task.Service, admin ...gin.HandlerFunc) {
	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(admin), h)
	}
	batches := rg.Group("/batches")

	batches.POST("", guarded(func(c *gin.Context) {
		var req createBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		b, err := svc.CreateBatch(c.Request.Context(), middleware.Subject(c), req.BatchType,
			task.BatchParams{ImportSourceName: req.ImportSourceName}, req.Documents)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, b)
	})...)

	batches.GET("", func(c *gin.Context) {
		list, err := svc.ListBatches(c.Request.Context(), task.BatchType(c.Query("type")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	batches.GET("/:id", func(c *gin.Context) {
		details, err := svc.GetBatchDetails(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, details)
	})

	rg.POST("/tasks/:id/process", guarded(func(c *gin.Context) {
		id := c.Param("id")
		outcome, err := svc.ProcessTask(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"taskId": id, "outcome": outcome})
	})...)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, task.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, task.ErrBatchInProgress), errors.Is(err, task.ErrLockLost):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Errorf("task request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
