package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/db"
	"github.com/cozy-creator/sticker-server/internal/db/drivers"
	"github.com/cozy-creator/sticker-server/internal/db/migrations"
	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/archive"
	"github.com/cozy-creator/sticker-server/internal/services/filestorage"
	"github.com/cozy-creator/sticker-server/internal/services/fileuploader"
	"github.com/cozy-creator/sticker-server/internal/services/generation"
	"github.com/cozy-creator/sticker-server/internal/services/generation/providers"
	"github.com/cozy-creator/sticker-server/internal/services/jobs"
	"github.com/cozy-creator/sticker-server/internal/services/promptqueue"
	"github.com/cozy-creator/sticker-server/internal/services/prompts"
	"github.com/cozy-creator/sticker-server/pkg/logger"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const mirrorWorkers = 4

type App struct {
	db           *bun.DB
	config       *config.Config
	ctx          context.Context
	cancelFunc   context.CancelFunc
	fileuploader *fileuploader.Uploader
	factory      generation.ProviderFactory

	Logger *zap.Logger
	Events *events.Hub

	JobRepository                 repository.IJobRepository
	ImageRepository               repository.IImageRepository
	PromptsFileRepository         repository.IPromptsFileRepository
	GeneratedPromptFileRepository repository.IGeneratedPromptFileRepository
	QueueRepository               repository.IQueueRepository
	AppConfigRepository           repository.IAppConfigRepository

	Storage  *filestorage.LocalFileStorage
	Worker   *generation.Worker
	Archives *archive.Service
	Prompts  *prompts.Service
	Queue    *promptqueue.Processor
	Jobs     *jobs.Orchestrator
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.db = driver.GetDB()
		return nil
	}
}

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

// WithProviderFactory replaces the image provider backends. Used by tests.
func WithProviderFactory(factory generation.ProviderFactory) OptionFunc {
	return func(app *App) error {
		app.factory = factory
		return nil
	}
}

// WithDBInitialization connects to the configured database, unless a
// connection was already given, and makes sure the schema exists.
func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		if app.db == nil {
			conn, err := db.NewConnection(app.ctx, app.config)
			if err != nil {
				return err
			}
			app.db = conn.GetDB()
		}

		if err := app.db.RunInTx(app.ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return migrations.CreateSchema(ctx, tx)
		}); err != nil {
			return err
		}

		app.JobRepository = repository.NewJobRepository(app.db)
		app.ImageRepository = repository.NewImageRepository(app.db)
		app.PromptsFileRepository = repository.NewPromptsFileRepository(app.db)
		app.GeneratedPromptFileRepository = repository.NewGeneratedPromptFileRepository(app.db)
		app.QueueRepository = repository.NewQueueRepository(app.db)
		app.AppConfigRepository = repository.NewAppConfigRepository(app.db)

		return nil
	}
}

// WithFileUploader mirrors built archives to S3 when a bucket is configured.
func WithFileUploader() OptionFunc {
	return func(app *App) error {
		storage, err := filestorage.NewMirrorStorage(app.Config())
		if err != nil {
			return err
		}
		if storage == nil {
			return nil
		}

		app.fileuploader = fileuploader.NewFileUploader(storage, mirrorWorkers, app.Logger.Named("uploader"))
		return nil
	}
}

// WithServices builds the generation, archive, prompt and queue services and
// wires them together. It requires WithDBInitialization.
func WithServices() OptionFunc {
	return func(app *App) error {
		if app.db == nil {
			return fmt.Errorf("database is not initialized")
		}
		cfg := app.config

		storage, err := filestorage.NewLocalFileStorage(cfg.ImagesDir)
		if err != nil {
			return err
		}
		app.Storage = storage

		if app.factory == nil {
			app.factory = providers.NewFactory(cfg.OpenAI)
		}

		gen := generationConfig(cfg)
		app.Worker = generation.NewWorker(
			app.JobRepository,
			app.ImageRepository,
			storage,
			app.Events,
			app.factory,
			app.Logger.Named("worker"),
			generation.WithThrottle(throttleConfig(gen)),
			generation.WithDefaults(generation.Target{
				Provider: gen.Provider,
				Model:    gen.Model,
				Size:     gen.Size,
				Quality:  gen.Quality,
			}),
		)

		var archiveOpts []archive.Option
		if app.fileuploader != nil {
			archiveOpts = append(archiveOpts, archive.WithMirror(app.fileuploader))
		}
		app.Archives, err = archive.NewService(
			app.JobRepository,
			app.ImageRepository,
			app.AppConfigRepository,
			cfg.ArchivesDir,
			app.Events,
			app.Logger.Named("archive"),
			archiveOpts...,
		)
		if err != nil {
			return err
		}

		app.Prompts, err = prompts.NewService(
			app.PromptsFileRepository,
			app.GeneratedPromptFileRepository,
			cfg.PromptsDir,
			cfg.GeneratedPromptsDir,
			app.Events,
			app.Logger.Named("prompts"),
		)
		if err != nil {
			return err
		}

		app.Queue = promptqueue.NewProcessor(
			app.QueueRepository,
			app.GeneratedPromptFileRepository,
			app.PromptsFileRepository,
			app.Prompts,
			app.Events,
			app.Logger.Named("queue"),
		)

		apiKey := ""
		if cfg.OpenAI != nil {
			apiKey = cfg.OpenAI.APIKey
		}
		app.Jobs = jobs.NewOrchestrator(
			app.JobRepository,
			app.ImageRepository,
			app.PromptsFileRepository,
			app.AppConfigRepository,
			app.Worker,
			app.Archives,
			storage,
			app.Events,
			app.Logger.Named("jobs"),
			jobs.WithBaseContext(app.ctx),
			jobs.WithDefaultAPIKey(apiKey),
		)

		app.Jobs.OnJobDone(app.Queue.ProcessNext)
		if cfg.Queue == nil || cfg.Queue.AutoStart {
			app.Queue.OnPromoted(func(ctx context.Context, file *models.PromptsFile) error {
				_, err := app.Jobs.CreateJob(ctx, file.ID)
				return err
			})
		}

		return app.Jobs.SeedSettings(app.ctx, config.DefaultBasePrompt, gen.Provider, gen.Model)
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
		Events:     events.NewHub(),
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

// Close stops running jobs, which are marked failed, waits for them and the
// mirror uploads, then releases the hub and the database.
func (app *App) Close() {
	app.cancelFunc()

	if app.Jobs != nil {
		app.Jobs.Wait()
	}
	if app.fileuploader != nil {
		app.fileuploader.Stop()
	}

	app.Events.Close()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.Logger.Error("failed to close database", zap.Error(err))
		}
	}
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) Uploader() *fileuploader.Uploader {
	return app.fileuploader
}

func generationConfig(cfg *config.Config) *config.GenerationConfig {
	if cfg.Generation != nil {
		return cfg.Generation
	}

	return &config.GenerationConfig{
		Provider:     config.DefaultProvider,
		Model:        config.DefaultModel,
		Size:         config.DefaultImageSize,
		Quality:      config.DefaultImageQuality,
		InitialDelay: config.DefaultInitialDelay,
		MinDelay:     config.DefaultMinDelay,
		MaxDelay:     config.DefaultMaxDelay,
		MaxAttempts:  config.DefaultMaxAttempts,
	}
}

func throttleConfig(gen *config.GenerationConfig) generation.ThrottleConfig {
	th := generation.DefaultThrottleConfig()
	if gen.InitialDelay > 0 {
		th.InitialDelay = seconds(gen.InitialDelay)
	}
	if gen.MinDelay > 0 {
		th.MinDelay = seconds(gen.MinDelay)
	}
	if gen.MaxDelay > 0 {
		th.MaxDelay = seconds(gen.MaxDelay)
	}
	if gen.MaxAttempts > 0 {
		th.MaxAttempts = gen.MaxAttempts
	}

	return th
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
