package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"k8s.io/client-go/util/homedir"

	"github.com/taskward/taskward/internal/app/bulk"
	"github.com/taskward/taskward/internal/app/search"
	"github.com/taskward/taskward/internal/cache"
	cachememory "github.com/taskward/taskward/internal/cache/memory"
	cacheredis "github.com/taskward/taskward/internal/cache/redis"
	"github.com/taskward/taskward/internal/config"
	"github.com/taskward/taskward/internal/server"
	"github.com/taskward/taskward/internal/storage/sqlite"
)

// Janitor intervals for the background workers.
const (
	cacheSweepInterval  = 1 * time.Minute
	retentionInterval   = 1 * time.Hour
	defaultOpRetention  = 24 * time.Hour
	shutdownGracePeriod = 15 * time.Second
)

// ServerCommand runs the HTTP API server.
type ServerCommand struct {
	rootConfig *RootCommand

	ListenAddress string
	RedisURL      string
	ConfigPath    string
	UndoDepth     int
}

// NewServerCommand creates the server command.
func NewServerCommand(rootConfig *RootCommand, app *kingpin.Application) *ServerCommand {
	c := &ServerCommand{rootConfig: rootConfig}
	cmd := app.Command("server", "Runs the HTTP API server.")

	cmd.Flag("listen-address", "Address where the HTTP server will listen.").Default(":8080").Envar("TASKWARD_LISTEN_ADDRESS").StringVar(&c.ListenAddress)
	cmd.Flag("redis-url", "Redis URL for the distributed cache. Empty uses the in-process cache only.").Envar("TASKWARD_REDIS_URL").StringVar(&c.RedisURL)
	cmd.Flag("config", "Path to an optional YAML configuration file.").Envar("TASKWARD_CONFIG").StringVar(&c.ConfigPath)
	cmd.Flag("undo-depth", "Per-user undo stack depth.").Default("50").IntVar(&c.UndoDepth)

	return c
}

// Name returns the name of the command.
func (c ServerCommand) Name() string { return "server" }

// Run runs the application command.
func (c ServerCommand) Run(ctx context.Context) error {
	logger := c.rootConfig.Logger

	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}

	// Storage.
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create storage: %w", err)
	}
	defer repo.Close()

	// Cache. The in-process store is always present, Redis on top of
	// it when configured.
	memCache, err := cachememory.NewCache(cachememory.CacheConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create memory cache: %w", err)
	}

	var appCache cache.Cache = memCache
	var redisCache *cacheredis.Cache
	if cfg.RedisURL != "" {
		redisCache, err = cacheredis.NewCache(ctx, cacheredis.CacheConfig{
			URL:    cfg.RedisURL,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("could not create redis cache: %w", err)
		}
		defer redisCache.Close()

		appCache, err = cache.NewFallback(cache.FallbackConfig{
			Primary:  redisCache,
			Fallback: memCache,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("could not create fallback cache: %w", err)
		}
	}

	// Services.
	bulkSvc, err := bulk.NewService(bulk.ServiceConfig{
		TaskRepository:      repo,
		OperationRepository: repo,
		Cache:               appCache,
		UndoDepth:           cfg.UndoDepth,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("could not create bulk service: %w", err)
	}

	searchSvc, err := search.NewService(search.ServiceConfig{
		TaskRepository: repo,
		Cache:          appCache,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create search service: %w", err)
	}

	httpServer, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		BulkService:   bulkSvc,
		SearchService: searchSvc,
		HealthCheck: func(ctx context.Context) error {
			if err := repo.Ping(ctx); err != nil {
				return err
			}
			_, err := appCache.Exists(ctx, "healthz")
			return err
		},
		Debug:  cfg.Debug,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create http server: %w", err)
	}

	var g run.Group

	// Context watcher.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// HTTP server.
	{
		g.Add(
			func() error {
				return httpServer.ListenAndServe()
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Could not shut down http server cleanly: %s", err)
				}
			},
		)
	}

	// In-process cache janitor.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				ticker := time.NewTicker(cacheSweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if n := memCache.DeleteExpired(); n > 0 {
							logger.Debugf("Swept %d expired cache entries", n)
						}
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Operation record retention.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				ticker := time.NewTicker(retentionInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if _, err := bulkSvc.PurgeCompleted(ctx, cfg.OperationRetention); err != nil {
							logger.Errorf("Could not purge operation records: %s", err)
						}
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// loadConfig merges the optional configuration file under the flags:
// a flag set to a non-default value wins, otherwise the file value.
func (c ServerCommand) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg := &config.Config{
		DBPath:             c.rootConfig.DBPath,
		RedisURL:           c.RedisURL,
		ListenAddress:      c.ListenAddress,
		UndoDepth:          c.UndoDepth,
		OperationRetention: defaultOpRetention,
		Debug:              c.rootConfig.Debug,
	}

	if c.ConfigPath == "" {
		return cfg, nil
	}

	dir, file := filepath.Split(c.ConfigPath)
	if dir == "" {
		dir = "."
	}
	loader := config.NewLoader(os.DirFS(dir))
	fileCfg, err := loader.Load(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("could not load config file: %w", err)
	}

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".taskward", "taskward.db")
	if fileCfg.DBPath != "" && cfg.DBPath == defaultDBPath {
		cfg.DBPath = fileCfg.DBPath
	}
	if fileCfg.RedisURL != "" && cfg.RedisURL == "" {
		cfg.RedisURL = fileCfg.RedisURL
	}
	if fileCfg.ListenAddress != "" && cfg.ListenAddress == ":8080" {
		cfg.ListenAddress = fileCfg.ListenAddress
	}
	if fileCfg.UndoDepth != 0 && cfg.UndoDepth == 50 {
		cfg.UndoDepth = fileCfg.UndoDepth
	}
	if fileCfg.OperationRetention != 0 {
		cfg.OperationRetention = fileCfg.OperationRetention
	}
	if fileCfg.Debug {
		cfg.Debug = true
	}

	return cfg, nil
}
