package cmd

import (
	"fmt"
	"os"

	// Subcommands
	db "github.com/cozy-creator/sticker-server/cmd/sticker/db"
	generate "github.com/cozy-creator/sticker-server/cmd/sticker/generate"
	run "github.com/cozy-creator/sticker-server/cmd/sticker/run"
	settings "github.com/cozy-creator/sticker-server/cmd/sticker/settings"
	"github.com/cozy-creator/sticker-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:          "sticker",
	Short:        "Sticker generation server",
	Long:         "Turns text files of prompts into batches of AI generated sticker images and serves them as downloadable ZIP bundles",
	SilenceUsage: true,

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config and env files
		return config.InitConfig()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("sticker-home", "", "Path to the sticker home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.BindPFlag("sticker_home", pflags.Lookup("sticker-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(run.Cmd, db.Cmd, settings.Cmd, generate.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
