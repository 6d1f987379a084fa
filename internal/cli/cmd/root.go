package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/withObsrvr/tour-discovery/internal/cli/config"
	"github.com/withObsrvr/tour-discovery/internal/cli/runner"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string

	factories runner.Factories

	rootCmd = &cobra.Command{
		Use:   "tourdiscovery",
		Short: "Tour results discovery pipeline",
		Long:  color.CyanString(`tourdiscovery - find, fetch and keep tour event results, one bounded run at a time`),

		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ConfigureLogging(config.LogConfig{
				Level:  viper.GetString("log.level"),
				Format: viper.GetString("log.format"),
			}, verbose)
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tourdiscovery.yaml or $HOME/.tourdiscovery.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(".")
		viper.SetConfigName("tourdiscovery")
		if home != "" {
			viper.AddConfigPath(home)
		}
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if err != nil && cfgFile != "" {
		fmt.Fprintln(os.Stderr, color.RedString("Error reading config file %s: %v", cfgFile, err))
	}
}

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

func openRunner(ctx context.Context) (*runner.Runner, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return runner.New(ctx, runner.Options{Settings: settings}, factories)
}
