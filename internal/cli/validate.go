package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check a configuration directory without running anything",
	Long: `Load and validate the configuration file of a directory (default: --dir or
the current directory) and print its tasks and route tree.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		dir = "."
	}

	cfg, path, err := config.LoadFromDir(dir)
	if err != nil {
		return err
	}
	logger.Debug("loaded configuration", "path", path)

	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid\n", path)
	printTasks(out, cfg.Tasks)
	fmt.Fprintln(out, "Routes:")
	if cfg.Routes.Kind() == config.RouteNone {
		fmt.Fprintln(out, "  (none)")
		return nil
	}
	printRoutes(out, cfg, cfg.Routes, 1)
	return nil
}

func printTasks(w io.Writer, tasks []config.Task) {
	fmt.Fprintf(w, "Tasks (%d):\n", len(tasks))
	for _, t := range tasks {
		entry := t.Entry
		if entry == "" {
			entry = "-"
		}
		fmt.Fprintf(w, "  %-16s %-24s entry=%s questions=%d\n", t.Key, t.Name, entry, len(t.Questions))
	}
}

func printRoutes(w io.Writer, cfg *config.Config, node *config.RouteNode, depth int) {
	indent := strings.Repeat("  ", depth)
	kind := node.Kind()
	if kind == config.RouteNone {
		return
	}

	message := ""
	if node.Message != "" {
		message = fmt.Sprintf(" %q", node.Message)
	}
	fmt.Fprintf(w, "%s%s%s\n", indent, kind, message)

	for _, route := range node.Choices() {
		name := route.Key
		if task, ok := cfg.Task(route.Key); ok {
			name = fmt.Sprintf("%s (%s)", task.Name, task.Key)
		}
		fmt.Fprintf(w, "%s- %s\n", indent, name)
		printRoutes(w, cfg, route.Routes, depth+2)
	}
}
