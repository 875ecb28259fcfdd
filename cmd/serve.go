package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/app"
	"github.com/conneroisu/tessera/internal/config"
)

var serveCmd = &cobra.Command{
	Use:     "serve [templates-dir]",
	Aliases: []string{"s"},
	Args:    cobra.MaximumNArgs(1),
	Short:   "Start the development server with hot reload",
	Long: `Start the development server. In development mode template changes
are watched, debounced, recompiled, and pushed to connected browsers.

Examples:
  tessera serve                   # Serve ./templates
  tessera serve site/templates    # Serve a specific directory
  tessera serve --no-reload       # Disable hot reload`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8000, "Port to serve on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringP("templates", "t", "", "Template source directory")
	serveCmd.Flags().String("static-dir", "", "Static files directory")
	serveCmd.Flags().String("static-path", "", "Static files serve path")
	serveCmd.Flags().Bool("no-reload", false, "Disable hot reload")
	serveCmd.Flags().StringP("environment", "e", "", "Environment (development, production)")
	serveCmd.Flags().Duration("debounce", 0, "Reload debounce window")

	bindFlags(serveCmd.Flags(), map[string]string{
		"app.port":    "port",
		"app.address": "host",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	builder := app.New().WithConfig(cfg)

	if len(args) > 0 {
		builder.TemplatesPath(args[0])
	} else if dir, _ := cmd.Flags().GetString("templates"); dir != "" {
		builder.TemplatesPath(dir)
	}
	if env, _ := cmd.Flags().GetString("environment"); env != "" {
		builder.Environment(env)
	}
	if dir, _ := cmd.Flags().GetString("static-dir"); dir != "" {
		path, _ := cmd.Flags().GetString("static-path")
		if path == "" {
			path = cfg.Templates.StaticPath
		}
		builder.StaticFiles(path, dir)
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		builder.LiveReload(false)
	}
	if debounce, _ := cmd.Flags().GetDuration("debounce"); debounce > 0 {
		builder.DebounceWindow(debounce)
	}

	return builder.Serve(context.Background())
}
