package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "easely",
	Short: "Easely - Conversational deadline assistant for students",
	Long: `Easely keeps students on top of their academic deadlines through a
Messenger conversation: tasks are created in chat or imported from Canvas,
and tiered reminders are delivered before each due date.

State lives in Redis, so a single server process (or an external cron
invoking 'easely sweep') is all a deployment needs.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "easely.yml", "Path to configuration file")
}
