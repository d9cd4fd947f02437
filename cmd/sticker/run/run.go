package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/sticker-server/internal/app"
	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/server"
	"github.com/cozy-creator/sticker-server/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the sticker server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration: dev, test or prod")
	flags.String("public-dir", "", "Path where static files should be served from. Relative paths are relative to the current working directory.")

	flags.String("db-driver", "", "Database driver: sqlite, libsql or pg")
	flags.String("db-dsn", "", "Database DSN (Connection URL or Path)")
	flags.Bool("auto-start", true, "Start a job as soon as a queued prompts file is promoted")

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("public_dir", flags.Lookup("public-dir"))
	viper.BindPFlag("db.driver", flags.Lookup("db-driver"))
	viper.BindPFlag("db.dsn", flags.Lookup("db-dsn"))
	viper.BindPFlag("queue.auto_start", flags.Lookup("auto-start"))
}

func runApp(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := app.NewApp(
		config.MustGetConfig(),
		app.WithDBInitialization(),
		app.WithFileUploader(),
		app.WithServices(),
	)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := server.NewServer(app.Config())
	if err != nil {
		return err
	}
	srv.SetupRoutes(app)

	// pick up anything that was queued while the server was down
	if _, err := app.Queue.ProcessNext(ctx); err != nil {
		app.Logger.Error("failed to process prompt queue", zap.Error(err))
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("sticker server started", zap.String("addr", srv.Addr()))
		return srv.Start()
	})

	group.Go(func() error {
		<-ctx.Done()

		// event streams only end once the hub is closed
		app.Events.Close()
		return srv.Stop(context.Background())
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
