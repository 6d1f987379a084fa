package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/tour-discovery/internal/cli/config"
	"github.com/withObsrvr/tour-discovery/pkg/campaign"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for validating and inspecting tourdiscovery settings.`,
}

// validateCmd checks settings and the campaign file without touching storage
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate settings and the campaign file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if err := settings.Validate(); err != nil {
			color.New(color.FgRed).Fprintln(out, "❌ Configuration has errors:")
			if cfgErr, ok := err.(*config.Error); ok {
				for _, p := range cfgErr.Problems {
					fmt.Fprintf(out, "  • %s\n", p)
				}
			}
			return fmt.Errorf("configuration validation failed")
		}

		c, err := campaign.Load(settings.CampaignFile)
		if err != nil {
			color.New(color.FgRed).Fprintln(out, "❌ Campaign file has errors:")
			fmt.Fprintf(out, "  • %v\n", err)
			return fmt.Errorf("configuration validation failed")
		}

		color.New(color.FgGreen).Fprintln(out, "✅ Configuration is valid!")
		fmt.Fprintf(out, "   Campaign: %s (%d stages)\n", c.Name, len(c.Stages))
		fmt.Fprintf(out, "   Storage:  %s\n", settings.Storage.Type)
		return nil
	},
}

// showCmd prints the effective settings with secrets masked
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(settings.Redacted())
		if err != nil {
			return fmt.Errorf("marshaling settings: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(showCmd)
}
