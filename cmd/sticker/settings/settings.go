package settings

import (
	"fmt"
	"strings"

	"github.com/cozy-creator/sticker-server/internal/app"
	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/services/jobs"
	"github.com/cozy-creator/sticker-server/internal/utils/randutil"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change the stored generation settings",
	Long: "Read and change the settings new jobs are created with. Valid keys: " +
		strings.Join(jobs.SettingKeys, ", "),
}

func init() {
	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			value, err := app.Jobs.GetSetting(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			reveal, _ := cmd.Flags().GetBool("reveal")
			if args[0] == models.ConfigKeyAPIKey && !reveal {
				value = randutil.MaskSecret(value)
			}

			fmt.Println(value)
			return nil
		},
	}
	getCmd.Flags().Bool("reveal", false, "Print the API key unmasked")

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Jobs.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			fmt.Printf("%s updated\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			settings, err := app.Jobs.Settings(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("%s: %s\n", models.ConfigKeyProvider, settings.Provider)
			fmt.Printf("%s: %s\n", models.ConfigKeyModel, settings.Model)
			fmt.Printf("%s: %s\n", models.ConfigKeyAPIKey, settings.APIKey)
			fmt.Printf("%s: %s\n", models.ConfigKeyBasePrompt, settings.BasePrompt)
			return nil
		},
	}

	Cmd.AddCommand(getCmd, setCmd, listCmd)
}

func newApp() (*app.App, error) {
	return app.NewApp(config.MustGetConfig(), app.WithDBInitialization(), app.WithServices())
}
