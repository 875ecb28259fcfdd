package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Scaffold a new tessera project",
	Long: `Create a starter project: a templates directory with a layout and
index page, a public directory for static assets, and a .tessera.yml.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("name", "", "Project name (defaults to the directory name)")
}

// scaffoldConfig is the subset of configuration worth writing out for a
// fresh project
type scaffoldConfig struct {
	App struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"app"`
	Environment string `yaml:"environment"`
	Templates   struct {
		Path       string `yaml:"path"`
		StaticDir  string `yaml:"static_dir"`
		StaticPath string `yaml:"static_path"`
	} `yaml:"templates"`
}

const scaffoldLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{% block title %}tessera{% endblock %}</title>
  <link rel="stylesheet" href="/public/style.css">
</head>
<body>
  {% block content %}{% endblock %}
</body>
</html>
`

const scaffoldIndex = `{% extends "layout.html" %}
{% block title %}Home{% endblock %}
{% block content %}
  <h1>It works</h1>
  <p>Edit templates/index.html and watch this page reload.</p>
{% endblock %}
`

const scaffoldStyle = `body { font-family: sans-serif; margin: 2rem auto; max-width: 40rem; }
`

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		name = filepath.Base(abs)
	}

	var cfg scaffoldConfig
	cfg.App.Name = name
	cfg.App.Address = "127.0.0.1"
	cfg.App.Port = 8000
	cfg.Environment = "development"
	cfg.Templates.Path = "templates"
	cfg.Templates.StaticDir = "./public"
	cfg.Templates.StaticPath = "/public"

	cfgBytes, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	files := map[string][]byte{
		".tessera.yml":          cfgBytes,
		"templates/layout.html": []byte(scaffoldLayout),
		"templates/index.html":  []byte(scaffoldIndex),
		"public/style.css":      []byte(scaffoldStyle),
	}

	for rel, content := range files {
		path := filepath.Join(root, rel)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "skip %s (exists)\n", rel)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "create %s\n", rel)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nDone. Run: tessera serve\n")
	return nil
}
