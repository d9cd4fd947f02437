package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cozy-creator/sticker-server/internal/services/archive"
	"github.com/gin-gonic/gin"
)

const aggregateZipName = "all_jobs.zip"

func GetJobZipHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	info, err := getApp(c).Archives.GetOrBuildJobArchive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	serveArchive(c, info, jobZipName(id))
}

// HeadJobZipHandler reports the recorded archive without building it.
func HeadJobZipHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	info, err := getApp(c).Archives.JobArchiveInfo(c.Request.Context(), id)
	if err != nil {
		c.Status(errorStatus(err))
		return
	}

	archiveHeaders(c, info, jobZipName(id))
	c.Status(http.StatusOK)
}

func GetLatestZipHandler(c *gin.Context) {
	app := getApp(c)
	ctx := c.Request.Context()

	job, err := app.Jobs.LatestSucceeded(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := app.Archives.GetOrBuildJobArchive(ctx, job.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	serveArchive(c, info, jobZipName(job.ID))
}

func GetAggregateZipHandler(c *gin.Context) {
	info, err := getApp(c).Archives.GetOrBuildAggregateArchive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	serveArchive(c, info, aggregateZipName)
}

func HeadAggregateZipHandler(c *gin.Context) {
	info, err := getApp(c).Archives.AggregateInfo(c.Request.Context())
	if err != nil {
		c.Status(errorStatus(err))
		return
	}

	archiveHeaders(c, info, aggregateZipName)
	c.Status(http.StatusOK)
}

// serveArchive streams the file. http.ServeContent answers If-None-Match
// against the ETag set here.
func serveArchive(c *gin.Context, info *archive.Info, name string) {
	c.Header("ETag", etag(info))
	c.Header("X-Content-SHA256", info.SHA256)
	c.Header("Content-Type", "application/zip")
	c.FileAttachment(info.Path, name)
}

func archiveHeaders(c *gin.Context, info *archive.Info, name string) {
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Length", strconv.FormatInt(info.SizeBytes, 10))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("ETag", etag(info))
	c.Header("X-Content-SHA256", info.SHA256)
	c.Header("Last-Modified", info.BuiltAt.UTC().Format(http.TimeFormat))
}

func etag(info *archive.Info) string {
	return `"` + info.SHA256 + `"`
}

func jobZipName(id int64) string {
	return fmt.Sprintf("job_%d.zip", id)
}
