package main

import (
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prasenjit/proxyboy/internal/openapi"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Describe the imported rules as an OpenAPI 3 document",
	RunE:  runExport,
}

var (
	exportFormat string
	exportOutput string
	exportTitle  string
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "yaml", "Output format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "Document title")
}

func runExport(cmd *cobra.Command, args []string) error {
	var render func(*openapi3.T) ([]byte, error)
	switch exportFormat {
	case "json":
		render = openapi.ToJSON
	case "yaml", "yml":
		render = openapi.ToYAML
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", exportFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.ListAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	data, err := render(openapi.Export(rules, openapi.Info{Title: exportTitle}))
	if err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}

	if exportOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rules to %s\n", len(rules), exportOutput)
	return nil
}
