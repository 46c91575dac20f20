package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/templating"
)

var (
	// Persistent flags available to all subcommands
	templateDir string
	verbose     bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft renders, checks, and inspects weft templates",
	Long: `weft is the command-line companion to the weft template engine.

It renders template files against JSON or YAML data, validates template
syntax without rendering, and lists the helper functions available inside
templates. Partials (*.part files) in the template directory are loaded
automatically and can be invoked with {{template "name" .}}.`,
	// No Run function here means 'weft' with no args will print help text by default.
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&templateDir, "templates", ".", "Directory to load *.tmpl and *.part files from")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log template loading and execution details to stderr")
}

// newManager builds a template manager over the configured template
// directory. Logs go to stderr so rendered output on stdout stays clean.
func newManager() (*templating.TemplateManager, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	var out io.Writer = os.Stderr
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	config := templating.DefaultConfig()
	return templating.NewTemplateManager(logger, &config, templateDir)
}
