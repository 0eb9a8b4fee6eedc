package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prasenjit/proxyboy/internal/config"
	"github.com/prasenjit/proxyboy/internal/importer"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Type = config.StorageFile
	cfg.Storage.Path = filepath.Join(dir, "data")
	cfg.Mock.ConfigFile = filepath.Join(dir, "config.json")
	cfg.Logging.Level = "error"
	return cfg
}

func TestInitThenImport(t *testing.T) {
	dir := t.TempDir()

	initPath, initForce = dir, false
	require.NoError(t, runInit(initCmd, nil))

	for _, name := range []string{"config.yaml", "config.json", ".env", filepath.Join("store", "hello.json")} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	settingsData, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(settingsData), "configFile: config.json")

	cfg := fileConfig(t, dir)
	var out bytes.Buffer
	require.NoError(t, importRouterList(context.Background(), cfg, &out))

	assert.Equal(t, "Importing "+cfg.Mock.ConfigFile+" to database...\n"+
		"Imported mock: GET /hello -> /hello.json\n"+
		"Imported mock: POST /hello -> /hello.json\n"+
		"Successfully imported router configurations\n"+
		"Import completed successfully!\n", out.String())

	store, err := openStorage(cfg.Storage)
	require.NoError(t, err)
	defer store.Close()

	rules, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "GET", rules[0].Method)
	assert.Equal(t, "POST", rules[1].Method)
}

func TestInitKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(existing, []byte(`{"router_list":[]}`), 0644))

	initPath, initForce = dir, false
	require.NoError(t, runInit(initCmd, nil))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, `{"router_list":[]}`, string(data))

	initForce = true
	defer func() { initForce = false }()
	require.NoError(t, runInit(initCmd, nil))

	doc, err := importer.ReadDocument(existing)
	require.NoError(t, err)
	assert.Len(t, doc.RouterList, 1)
}

func TestImportMissingDocument(t *testing.T) {
	cfg := fileConfig(t, t.TempDir())

	var out bytes.Buffer
	err := importRouterList(context.Background(), cfg, &out)
	require.Error(t, err)
	assert.True(t, mockerr.Is(err, mockerr.ConfigRead))
	assert.NotContains(t, out.String(), "Successfully")
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{"memory", config.StorageConfig{Type: config.StorageMemory}, false},
		{"file", config.StorageConfig{Type: config.StorageFile, Path: filepath.Join(dir, "data")}, false},
		{"sql", config.StorageConfig{Type: config.StorageSQL, DatabaseURL: filepath.Join(dir, "test.db")}, false},
		{"unknown", config.StorageConfig{Type: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStorage(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, store.Close())
		})
	}
}
