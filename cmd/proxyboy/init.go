package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize proxyboy with a default configuration and a sample router list",
	Long: `Creates the default settings file and a sample mock setup.

This command will:
  - Create config.yaml with default settings
  - Create config.json with a sample router list
  - Create .env with the environment variables proxyboy reads
  - Create store/hello.json as the sample response file

Existing files are not overwritten unless --force is used.`,
	RunE: runInit,
}

var (
	initForce bool
	initPath  string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Path where to initialize (default: current directory)")
}

const sampleRouterList = `{
  "store_path": "store",
  "router_list": [
    {
      "name": "hello",
      "enable": true,
      "method": "GET,POST",
      "url": "/hello",
      "file": "/hello.json",
      "status_code": 200,
      "delay": 0,
      "content_type": "application/json"
    }
  ]
}
`

const sampleResponse = `{
  "message": "Hello from proxyboy"
}
`

const sampleEnv = `# proxyboy environment
# SERVER_ADDR=0.0.0.0:3000
# STORAGE_TYPE=sql
# DATABASE_URL=./database.db
# CONFIG_FILE=config.json
# STORE_PATH=store
# MOCK_MODE=
# LOG_LEVEL=info
`

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	storeDir := filepath.Join(absPath, "store")
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", storeDir, err)
	}
	fmt.Printf("Created directory: %s\n", storeDir)

	settings := map[string]interface{}{
		"server": map[string]interface{}{
			"addr": "0.0.0.0:3000",
		},
		"storage": map[string]interface{}{
			"type":        "sql",
			"databaseUrl": "./database.db",
			"path":        "./data",
		},
		"mock": map[string]interface{}{
			"configFile": "config.json",
			"storePath":  "",
			"mode":       "",
		},
		"audit": map[string]interface{}{
			"maxRecords": 1000,
			"queueSize":  256,
		},
		"logging": map[string]interface{}{
			"level":  "info",
			"format": "text",
			"file":   "",
		},
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	header := `# proxyboy settings
# Environment variables and .env override these values

`

	files := []struct {
		path string
		data []byte
	}{
		{filepath.Join(absPath, "config.yaml"), []byte(header + string(data))},
		{filepath.Join(absPath, "config.json"), []byte(sampleRouterList)},
		{filepath.Join(absPath, ".env"), []byte(sampleEnv)},
		{filepath.Join(storeDir, "hello.json"), []byte(sampleResponse)},
	}

	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil && !initForce {
			fmt.Printf("Skipped existing file: %s (use --force to overwrite)\n", f.path)
			continue
		}
		if err := os.WriteFile(f.path, f.data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		fmt.Printf("Created file: %s\n", f.path)
	}

	fmt.Println()
	fmt.Println("Initialization complete! Import the sample routes and start the server with:")
	fmt.Println()
	fmt.Printf("  cd %s\n", absPath)
	fmt.Println("  proxyboy import")
	fmt.Println("  proxyboy serve")
	fmt.Println()

	return nil
}
