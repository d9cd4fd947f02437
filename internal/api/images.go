package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const (
	defaultImagesLimit = 100
	confirmHeader      = "X-Confirm"
	confirmDeleteAll   = "delete-all"
)

type imageResponse struct {
	models.Image
	URL string `json:"url"`
}

func ListImagesHandler(c *gin.Context) {
	app := getApp(c)
	ctx := c.Request.Context()

	var (
		images []models.Image
		err    error
	)
	if jobID, perr := strconv.ParseInt(c.Query("job_id"), 10, 64); perr == nil && jobID > 0 {
		images, err = app.ImageRepository.ListByJobID(ctx, jobID)
	} else {
		images, err = app.ImageRepository.List(ctx, queryInt(c, "limit", defaultImagesLimit), queryInt(c, "offset", 0))
	}
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]imageResponse, len(images))
	for i, img := range images {
		out[i] = imageResponse{Image: img, URL: fmt.Sprintf("/api/files/images/%d", img.ID)}
	}

	c.JSON(http.StatusOK, gin.H{"images": out})
}

func GetImageFileHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	img, err := getApp(c).ImageRepository.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := img.MimeType
	if contentType == "" {
		mtype, err := mimetype.DetectFile(img.Path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "image file is missing"})
			return
		}
		contentType = mtype.String()
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(img.Path)
}

// DeleteImagesHandler removes every image. The request must carry
// X-Confirm: delete-all.
func DeleteImagesHandler(c *gin.Context) {
	if c.GetHeader(confirmHeader) != confirmDeleteAll {
		c.JSON(http.StatusPreconditionRequired, gin.H{"message": confirmHeader + ": " + confirmDeleteAll + " header is required"})
		return
	}

	deleted, err := getApp(c).Jobs.PurgeImages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
