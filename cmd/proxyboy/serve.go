package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prasenjit/proxyboy/internal/api"
	"github.com/prasenjit/proxyboy/internal/audit"
	"github.com/prasenjit/proxyboy/internal/config"
	"github.com/prasenjit/proxyboy/internal/importer"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/mock"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/response"
	"github.com/prasenjit/proxyboy/internal/routing"
	"github.com/prasenjit/proxyboy/internal/stats"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock server",
	Long: `Starts the proxyboy mock server.

The server will:
  - Answer every request from the imported rules
  - Expose the Admin API at /_api/
  - Record each request in the audit log

Run "proxyboy import" first to load config.json into the rule store.`,
	RunE: runServe,
}

var (
	addrFlag string
	modeFlag string
)

func init() {
	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "Override listen address (host:port)")
	serveCmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Override response mode")

	// Bind flags to viper
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("mock.mode", serveCmd.Flags().Lookup("mode"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	auditService := audit.NewService(audit.Options{
		MaxRecords: cfg.Audit.MaxRecords,
		QueueSize:  cfg.Audit.QueueSize,
		Store:      store,
		Log:        log,
	})
	defer auditService.Close()

	statsCollector := stats.NewCollector()

	// store_path and mode are read from the router list at startup
	settings, err := importer.ReadSettings(cfg.Mock.ConfigFile)
	if err != nil {
		if mockerr.KindOf(err) != mockerr.ConfigRead {
			return err
		}
		log.WithError(err).Warn("router list not readable, using configured store path and mode")
	}

	// Nothing else fills a memory store
	if cfg.Storage.Type == config.StorageMemory {
		result, err := importer.New(store, log).ImportFile(cmd.Context(), cfg.Mock.ConfigFile, nil)
		if err != nil {
			return err
		}
		log.WithField("rules", len(result.Rules)).Info("router list imported into memory store")
	}

	builderFor := func(s importer.Settings) *response.Builder {
		return response.NewBuilder(cfg.ResolveStorePath(s.StorePath), cfg.ResolveMode(s.Mode), log)
	}

	mockEngine := mock.NewEngine(routing.NewMatcher(store), builderFor(settings), statsCollector, auditService, log)

	router := api.NewRouter(api.Options{
		Store:      store,
		Stats:      statsCollector,
		Audit:      auditService,
		Engine:     mockEngine,
		ConfigFile: cfg.Mock.ConfigFile,
		BuilderFor: builderFor,
		Log:        log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := mockEngine.Builder()
	log.WithFields(logrus.Fields{
		"addr":    cfg.Server.Addr,
		"storage": cfg.Storage.Type,
		"store":   builder.Root(),
		"mode":    builder.Mode(),
	}).Info("starting proxyboy server")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}

// openStorage creates the backend named by the storage settings
func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case config.StorageSQL:
		store, err := storage.NewSQLStorage(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sql storage: %w", err)
		}
		return store, nil
	case config.StorageFile:
		path := cfg.Path
		if path != "" && !filepath.IsAbs(path) {
			if cwd, err := os.Getwd(); err == nil {
				path = filepath.Join(cwd, path)
			}
		}
		store, err := storage.NewFileStorage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
		return store, nil
	case config.StorageMemory:
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
