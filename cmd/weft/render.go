package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dataFile   string
	setValues  []string
	outputFile string
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template against JSON or YAML data",
	Long: `Render a template and print the result to stdout.

The argument is either the name of a template loaded from the template
directory (e.g. "page.tmpl") or a path to any template file. Data comes
from --data (a .json, .yaml, or .yml file) and can be overridden with
repeated --set key=value flags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := newManager()
		if err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}

		data, err := loadData(dataFile, setValues)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if slices.Contains(tm.GetAllNames(), args[0]) {
			err = tm.Execute(&buf, args[0], data)
		} else {
			content, readErr := os.ReadFile(args[0])
			if readErr != nil {
				return fmt.Errorf("%q is neither a loaded template nor a readable file: %w", args[0], readErr)
			}
			err = tm.ExecuteTemplateString(&buf, string(content), data)
		}
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}

		if outputFile != "" {
			return os.WriteFile(outputFile, buf.Bytes(), 0o644)
		}
		_, err = buf.WriteTo(os.Stdout)
		return err
	},
}

func init() {
	renderCmd.Flags().StringVarP(&dataFile, "data", "d", "", "JSON or YAML file providing the template's data")
	renderCmd.Flags().StringArrayVar(&setValues, "set", nil, "Set a data key (key=value, repeatable; overrides --data)")
	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write output to a file instead of stdout")
	rootCmd.AddCommand(renderCmd)
}

// loadData builds the template data from an optional data file and --set
// overrides. YAML and JSON are detected by file extension.
func loadData(path string, sets []string) (map[string]any, error) {
	data := make(map[string]any)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read data file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(raw, &data); err != nil {
				return nil, fmt.Errorf("failed to parse YAML data: %w", err)
			}
		default:
			if err := json.Unmarshal(raw, &data); err != nil {
				return nil, fmt.Errorf("failed to parse JSON data: %w", err)
			}
		}
	}

	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set value %q, expected key=value", kv)
		}
		data[key] = value
	}

	return data, nil
}
