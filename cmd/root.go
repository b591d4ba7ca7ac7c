package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leadboard/leadboard-go/cmd/importcsv"
	"github.com/leadboard/leadboard-go/cmd/serve"
	"github.com/leadboard/leadboard-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leadboard",
		Short: "Leadboard CRM board engine CLI",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		importcsv.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "sqlite", viper.GetString("output.sqlite.path"), "Path to the SQLite database")
	cmd.PersistentFlags().StringVar(&settings.Web.Port, "port", viper.GetString("web.port"), "HTTP API listen port")

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
