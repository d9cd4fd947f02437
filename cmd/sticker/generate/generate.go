package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cozy-creator/sticker-server/internal/app"
	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/archive"
	"github.com/cozy-creator/sticker-server/internal/services/jobs"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

var Cmd = &cobra.Command{
	Use:   "generate <prompts.txt>",
	Short: "Generate stickers for a prompt file without starting the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	app, err := app.NewApp(config.MustGetConfig(), app.WithDBInitialization(), app.WithServices())
	if err != nil {
		return err
	}
	defer app.Close()

	file, err := app.Prompts.Import(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}

	// subscribe before the job exists so no progress event is missed
	stream := app.Events.Subscribe(app.Context())

	job, err := app.Jobs.CreateJob(ctx, file.ID)
	if err != nil {
		return err
	}

	progress := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	bar := progress.AddBar(int64(job.TotalPrompts),
		mpb.PrependDecorators(
			decor.Name(file.Filename, decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
			decor.Name(" ] "),
			decor.Percentage(),
		),
	)

	status, err := follow(ctx, app, job.ID, stream, bar)
	if !bar.Completed() {
		bar.Abort(false)
	}
	progress.Wait()
	if err != nil {
		return err
	}

	// archive building happens after the terminal status is published
	app.Jobs.Wait()

	summary, err := app.Jobs.GetJob(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return err
	}

	fmt.Printf("job %d %s: %d images, %d prompts skipped\n", job.ID, status, summary.ImageCount, summary.SkippedPrompts)
	if status != models.JobStatusSucceeded {
		return nil
	}

	info, err := app.Archives.JobArchiveInfo(context.WithoutCancel(ctx), job.ID)
	if errors.Is(err, archive.ErrNotBuilt) {
		fmt.Println("no archive was built")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("archive: %s (sha256 %s)\n", info.Path, info.SHA256)
	return nil
}

// follow advances bar for every prompt the job finishes and returns the
// job's terminal status. An interrupt cancels the job.
func follow(ctx context.Context, app *app.App, jobID int64, stream <-chan events.Event, bar *mpb.Bar) (models.JobStatus, error) {
	interrupted := ctx.Done()

	for {
		select {
		case <-interrupted:
			interrupted = nil
			_, err := app.Jobs.CancelJob(context.WithoutCancel(ctx), jobID)
			if err != nil && !errors.Is(err, jobs.ErrJobNotCancelable) {
				return "", fmt.Errorf("failed to cancel job %d: %w", jobID, err)
			}
		case event, ok := <-stream:
			if !ok {
				return "", fmt.Errorf("event stream closed before job %d finished", jobID)
			}

			payload, ok := event.Data.(events.Payload)
			if !ok || payload["job_id"] != jobID {
				continue
			}

			switch event.Type {
			case events.TypeImageCreated, events.TypePromptSkipped:
				bar.Increment()
			case events.TypeJobUpdated:
				if status, _ := payload["status"].(models.JobStatus); status.IsTerminal() {
					return status, nil
				}
			}
		}
	}
}
