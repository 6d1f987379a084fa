package cmd

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information injected via main package
var (
	Version   string
	GitCommit string
	BuildDate string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		title := color.New(color.FgCyan, color.Bold)
		label := color.New(color.FgGreen)

		title.Fprintf(out, "tourdiscovery %s\n\n", orDefault(Version, "dev"))

		for _, row := range [][2]string{
			{"Git commit: ", orDefault(GitCommit, "unknown")},
			{"Built:      ", orDefault(BuildDate, "unknown")},
			{"Go version: ", runtime.Version()},
			{"OS/Arch:    ", runtime.GOOS + "/" + runtime.GOARCH},
		} {
			label.Fprint(out, row[0])
			fmt.Fprintln(out, row[1])
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// SetVersionInfo sets the version information from the main package
func SetVersionInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}
