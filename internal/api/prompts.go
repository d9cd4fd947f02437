package api

import (
	"net/http"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/gin-gonic/gin"
)

type generatedPromptsRequest struct {
	Filename  string   `json:"filename" msgpack:"filename" binding:"required"`
	UserInput string   `json:"user_input" msgpack:"user_input"`
	Prompts   []string `json:"prompts" msgpack:"prompts" binding:"required"`
	Enqueue   bool     `json:"enqueue" msgpack:"enqueue"`
}

func ListPromptsHandler(c *gin.Context) {
	files, err := getApp(c).Prompts.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

// UploadPromptsHandler stores a .txt prompt list sent as multipart "file".
func UploadPromptsHandler(c *gin.Context) {
	file, ok := importUpload(c)
	if !ok {
		return
	}

	c.JSON(http.StatusCreated, file)
}

func ListGeneratedPromptsHandler(c *gin.Context) {
	files, err := getApp(c).Prompts.ListGenerated(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

// CreateGeneratedPromptsHandler records an authored prompt list and, when
// asked, queues it for promotion.
func CreateGeneratedPromptsHandler(c *gin.Context) {
	var body generatedPromptsRequest
	if !bindBody(c, &body) {
		return
	}

	app := getApp(c)
	ctx := c.Request.Context()

	file, err := app.Prompts.AddGenerated(ctx, body.Filename, body.UserInput, body.Prompts)
	if err != nil {
		respondError(c, err)
		return
	}

	if !body.Enqueue {
		c.JSON(http.StatusCreated, gin.H{"file": file})
		return
	}

	result, err := app.Queue.Enqueue(ctx, file.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"file": file, "queue": result})
}

func importUpload(c *gin.Context) (*models.PromptsFile, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file is required"})
		return nil, false
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to open file"})
		return nil, false
	}
	defer f.Close()

	file, err := getApp(c).Prompts.Import(c.Request.Context(), header.Filename, f)
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	return file, true
}
