// Package cmd provides the command-line interface for tessera.
//
// Configuration is resolved from multiple sources with clear precedence:
//  1. Command-line flags (--port, --templates, ...)
//  2. TESSERA_-prefixed environment variables (TESSERA_APP_PORT, ...)
//  3. The configuration file (.tessera.yml by default)
//
// A .env file in the working directory is loaded before anything else.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/tessera/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Hot-reloading template server for pongo2 templates",
	Long: `Tessera serves a directory of pongo2 templates with hot reload:
file changes are debounced, the template set is recompiled and swapped in
atomically, and connected browsers refresh over a live-reload websocket.
Template errors render as diagnostic pages instead of failing requests.

Quick Start:
  tessera init                    Scaffold a new project
  tessera serve                   Start the development server
  tessera render index.html      Render one template to stdout`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tessera.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log_level":  "log-level",
		"log_format": "log-format",
	})
}

// bindFlags binds config keys to their command-line flags
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: binding --%s: %v\n", flag, err)
		}
	}
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = os.Getenv("TESSERA_CONFIG_FILE")
	}
	if err := config.Init(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}
