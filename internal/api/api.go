package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cozy-creator/sticker-server/internal/app"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/services/archive"
	"github.com/cozy-creator/sticker-server/internal/services/jobs"
	"github.com/cozy-creator/sticker-server/internal/services/promptqueue"
	"github.com/cozy-creator/sticker-server/internal/services/prompts"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

func getApp(c *gin.Context) *app.App {
	return c.MustGet("app").(*app.App)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid " + name})
		return 0, false
	}

	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return fallback
	}

	return v
}

// bindBody accepts JSON (the default) and msgpack request bodies.
func bindBody(c *gin.Context, obj any) bool {
	var err error
	switch c.ContentType() {
	case "application/msgpack", "application/x-msgpack":
		err = c.ShouldBindWith(obj, binding.MsgPack)
	case "", "application/json":
		err = c.ShouldBindWith(obj, binding.JSON)
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"message": "unsupported content type: " + c.ContentType()})
		return false
	}

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse request body"})
		return false
	}

	return true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, jobs.ErrPromptsFileNotFound),
		errors.Is(err, promptqueue.ErrQueueEntryNotFound),
		errors.Is(err, promptqueue.ErrGeneratedFileNotFound),
		errors.Is(err, archive.ErrNotBuilt),
		errors.Is(err, archive.ErrNoImages):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrJobNotCancelable),
		errors.Is(err, jobs.ErrJobActive),
		errors.Is(err, promptqueue.ErrEntryProcessing),
		errors.Is(err, promptqueue.ErrEntryCompleted),
		errors.Is(err, archive.ErrJobNotSucceeded):
		return http.StatusConflict
	case errors.Is(err, prompts.ErrInvalidFileType),
		errors.Is(err, prompts.ErrInvalidEncoding),
		errors.Is(err, prompts.ErrNoPrompts),
		errors.Is(err, jobs.ErrUnknownSetting):
		return http.StatusBadRequest
	case errors.Is(err, prompts.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		getApp(c).Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{"message": err.Error()})
}
