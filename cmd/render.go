package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/templates"
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Args:  cobra.ExactArgs(1),
	Short: "Render a single template to stdout",
	Long: `Render one template against variables supplied on the command line.

Examples:
  tessera render index.html
  tessera render email/welcome.txt --var name=Ada --var plan=pro`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringP("templates", "t", "", "Template source directory")
	renderCmd.Flags().StringArray("var", nil, "Context variable as key=value (repeatable)")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir := cfg.Templates.Path
	if flagDir, _ := cmd.Flags().GetString("templates"); flagDir != "" {
		dir = flagDir
	}

	ctx := templates.Context{}
	vars, _ := cmd.Flags().GetStringArray("var")
	for _, v := range vars {
		key, value, found := strings.Cut(v, "=")
		if !found {
			return fmt.Errorf("invalid --var %q, expected key=value", v)
		}
		ctx[key] = value
	}

	store := templates.NewStore(dir, templates.WithLogger(logging.NewNopLogger()))

	out, err := store.Render(args[0], ctx)
	if err != nil {
		if msg, tracked := store.Errors().Get(); tracked {
			return fmt.Errorf("%s", msg)
		}
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
