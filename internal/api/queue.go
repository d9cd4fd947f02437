package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type enqueueRequest struct {
	GeneratedFileID int64 `json:"generated_file_id" msgpack:"generated_file_id" binding:"required"`
}

func EnqueueHandler(c *gin.Context) {
	var body enqueueRequest
	if !bindBody(c, &body) {
		return
	}

	result, err := getApp(c).Queue.Enqueue(c.Request.Context(), body.GeneratedFileID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyQueued {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func ListQueueHandler(c *gin.Context) {
	entries, err := getApp(c).Queue.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func RemoveQueueEntryHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := getApp(c).Queue.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func ProcessQueueHandler(c *gin.Context) {
	promoted, err := getApp(c).Queue.ProcessNext(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"promoted": promoted})
}
