package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/prasenjit/proxyboy/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "proxyboy",
		Short: "proxyboy - HTTP mock server driven by a router list",
		Long: `proxyboy answers HTTP requests with canned responses read from files.

Routes are declared in a JSON router list (config.json), imported into a
rule store and matched by method and path suffix. Running proxyboy without
a subcommand starts the server.`,
		RunE:         runServe,
		SilenceUsage: true,
	}
)

// environment variables bound to each setting
var envBindings = map[string]string{
	"server.addr":         "SERVER_ADDR",
	"storage.type":        "STORAGE_TYPE",
	"storage.databaseUrl": "DATABASE_URL",
	"storage.path":        "DATA_PATH",
	"mock.configFile":     "CONFIG_FILE",
	"mock.storePath":      "STORE_PATH",
	"mock.mode":           "MOCK_MODE",
	"audit.maxRecords":    "AUDIT_MAX_RECORDS",
	"audit.queueSize":     "AUDIT_QUEUE_SIZE",
	"logging.level":       "LOG_LEVEL",
	"logging.format":      "LOG_FORMAT",
	"logging.file":        "LOG_FILE",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(exportCmd)
}

// initConfig reads .env, the config file and environment variables
func initConfig() {
	// A missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Warning: failed to load .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	for key, env := range envBindings {
		_ = viper.BindEnv(key, env)
	}

	setDefaults(config.Default())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every default setting with viper
func setDefaults(def *config.Config) {
	viper.SetDefault("server.addr", def.Server.Addr)

	viper.SetDefault("storage.type", def.Storage.Type)
	viper.SetDefault("storage.databaseUrl", def.Storage.DatabaseURL)
	viper.SetDefault("storage.path", def.Storage.Path)

	viper.SetDefault("mock.configFile", def.Mock.ConfigFile)
	viper.SetDefault("mock.storePath", def.Mock.StorePath)
	viper.SetDefault("mock.mode", def.Mock.Mode)

	viper.SetDefault("audit.maxRecords", def.Audit.MaxRecords)
	viper.SetDefault("audit.queueSize", def.Audit.QueueSize)

	viper.SetDefault("logging.level", def.Logging.Level)
	viper.SetDefault("logging.format", def.Logging.Format)
	viper.SetDefault("logging.file", def.Logging.File)
}

// loadConfig returns the settings resolved by viper
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return cfg, nil
}
