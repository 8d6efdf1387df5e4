// Package cmd implements the command-line interface for the harvester. It
// provides the root command and subcommands for crawling vendor catalogs
// and loading run artifacts into the warehouse.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcrawl "github.com/banalytics/harvester/cmd/crawl"
	cmdload "github.com/banalytics/harvester/cmd/load"
	cmdschedule "github.com/banalytics/harvester/cmd/schedule"
	"github.com/banalytics/harvester/internal/config"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// rootCmd represents the root command for the harvester CLI.
	rootCmd = &cobra.Command{
		Use:   "harvester",
		Short: "Grocery catalog crawler and warehouse loader",
		Long: `Harvester crawls grocery vendor storefronts into newline-delimited
run artifacts and loads finished artifacts into PostgreSQL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are visible to viper.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Runs after cobra has routed flags to the target command, so
	// --config is honored wherever it appears on the command line.
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("harvester version %s\n", version)
		},
	})

	rootCmd.AddCommand(cmdcrawl.Command())
	rootCmd.AddCommand(cmdload.Command())
	rootCmd.AddCommand(cmdschedule.Command())
}

// initConfig reads the config file and environment variables into viper.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	// The config file is optional: defaults and environment variables are
	// enough to run.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("read config file: %w", err))
		}
	}
}
