package api

import (
	"net/http"

	"github.com/cozy-creator/sticker-server/internal/services/jobs"
	"github.com/gin-gonic/gin"
)

// GetConfigHandler returns the editable settings. The credential is masked.
func GetConfigHandler(c *gin.Context) {
	settings, err := getApp(c).Jobs.Settings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

func UpdateConfigHandler(c *gin.Context) {
	var body jobs.SettingsUpdate
	if !bindBody(c, &body) {
		return
	}

	settings, err := getApp(c).Jobs.UpdateSettings(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}
