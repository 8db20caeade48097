// Package cli implements the propertyd commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "propertyd",
	Short: "Email intake for the property dashboard",
	Long: "Reads inbound emails, extracts and splits their documents, matches them to a property\n" +
		"and files tasks, notes and calendar events against it.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $PROPERTYD_CONFIG or built-in defaults)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("PROPERTYD_CONFIG")
}

// loadConfig reads the config and applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}
	return cfg, nil
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
