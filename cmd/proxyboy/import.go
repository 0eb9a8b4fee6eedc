package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prasenjit/proxyboy/internal/config"
	"github.com/prasenjit/proxyboy/internal/importer"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the router list into the rule store",
	Long: `Reads the router list (config.json by default), expands every route into
one rule per method and replaces the contents of the rule store.

The store is left untouched if the document cannot be read or parsed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runImport(cmd, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().StringP("file", "f", "", "Router list to import (default: mock.configFile)")
	_ = viper.BindPFlag("mock.configFile", importCmd.Flags().Lookup("file"))
}

func runImport(cmd *cobra.Command, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return importRouterList(cmd.Context(), cfg, out)
}

// importRouterList loads cfg.Mock.ConfigFile into the configured store
func importRouterList(ctx context.Context, cfg *config.Config, out io.Writer) error {
	log := logging.New(cfg.Logging)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(out, "Importing %s to database...\n", cfg.Mock.ConfigFile)

	imp := importer.New(store, log)
	_, err = imp.ImportFile(ctx, cfg.Mock.ConfigFile, func(r *models.Rule) {
		fmt.Fprintf(out, "Imported mock: %s %s -> %s\n", r.Method, r.URL, r.File)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Successfully imported router configurations")
	fmt.Fprintln(out, "Import completed successfully!")
	return nil
}
