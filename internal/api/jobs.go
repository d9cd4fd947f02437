package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type createJobRequest struct {
	PromptsFileID int64 `json:"prompts_file_id" msgpack:"prompts_file_id" binding:"required"`
}

// CreateJobHandler starts a job for an existing prompts file, or for a
// prompts file uploaded in the same multipart request under "file".
func CreateJobHandler(c *gin.Context) {
	app := getApp(c)
	ctx := c.Request.Context()

	var promptsFileID int64
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, ok := importUpload(c)
		if !ok {
			return
		}
		promptsFileID = file.ID
	} else {
		var body createJobRequest
		if !bindBody(c, &body) {
			return
		}
		promptsFileID = body.PromptsFileID
	}

	job, err := app.Jobs.CreateJob(ctx, promptsFileID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func ListJobsHandler(c *gin.Context) {
	app := getApp(c)

	summaries, err := app.Jobs.ListJobs(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": summaries})
}

func GetJobHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := getApp(c).Jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func CancelJobHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := getApp(c).Jobs.CancelJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func DeleteJobHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := getApp(c).Jobs.DeleteJob(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
