package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	switch output {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q: use 'text', 'json', or 'yaml'", output)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// printStructured writes v as JSON or YAML when the output format asks for
// it. It reports false for text output so the caller can render its own.
func printStructured(cmd *cobra.Command, v interface{}) (bool, error) {
	switch getOutputFormat(cmd) {
	case "json":
		return true, printJSON(cmd.OutOrStdout(), v)
	case "yaml":
		return true, printYAML(cmd.OutOrStdout(), v)
	default:
		return false, nil
	}
}
