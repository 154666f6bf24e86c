package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/weather-shell/internal/config"
)

var version = "2.1.1"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "weather-shell",
	Short: "Offline cache gateway for the NEURON weather dashboard",
	Long: `
weather-shell sits in front of the dashboard's asset server. It installs the
application shell into a versioned cache, answers page requests cache-first so
the dashboard loads offline, refreshes favorite locations in the background and
shows push notifications.
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies the log level.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.SetLevel(cfg.Level())
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return cfg, nil
}
