package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moveehq/movee/backend/internal/auth"
	"github.com/moveehq/movee/backend/internal/config"
	"github.com/moveehq/movee/backend/internal/database"
	"github.com/moveehq/movee/backend/internal/geo"
	"github.com/moveehq/movee/backend/internal/logging"
	"github.com/moveehq/movee/backend/internal/presence"
	"github.com/moveehq/movee/backend/internal/server"
	"github.com/moveehq/movee/backend/internal/stream"
	"github.com/moveehq/movee/backend/internal/users"
	"github.com/moveehq/movee/backend/internal/venues"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "movee-api",
		Short: "Movee live venue and presence backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("presence-ttl-seconds", defaults.GetInt("presence.ttl_seconds"), "Presence record TTL in seconds")
	cmd.PersistentFlags().Int("stream-buffer-size", defaults.GetInt("stream.buffer_size"), "Per-subscriber delivery buffer size")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for rate limiting (empty disables)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "presence.ttl_seconds", "presence-ttl-seconds")
	bindFlag(cmd, "stream.buffer_size", "stream-buffer-size")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "movee-auth",
		Audience:      "movee-api",
	})

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	index := geo.NewIndex()
	venueStore := venues.NewStore(venues.StoreConfig{Logger: logger})
	presenceTable := presence.NewTable(presence.TableConfig{
		TTL:    appConfig.PresenceTTL,
		Logger: logger,
	})

	registry := stream.NewRegistry(stream.RegistryConfig{BufferSize: appConfig.StreamBufferSize})
	dispatcher := stream.NewDispatcher(stream.DispatcherConfig{
		Registry:  registry,
		Usernames: userService,
		Venues:    venueStore,
		Logger:    logger,
	})
	venueStore.SetSink(dispatcher)
	presenceTable.SetSink(dispatcher)

	queryService, err := stream.NewService(stream.ServiceConfig{
		Index:    index,
		Store:    venueStore,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Cold start: the spatial index and live state must cover the full venue
	// master set before any query is answered.
	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	defer cancelLoad()
	if err := venues.LoadSnapshot(loadCtx, db, venueStore, index, logger); err != nil {
		logger.Error("cold start snapshot load failed", zap.Error(err))
		return err
	}

	var redisClient *redis.Client
	if appConfig.RedisAddress != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
		defer redisClient.Close()
	}
	rateLimit := server.NewPresenceRateLimit(redisClient, server.RateLimitConfig{
		Burst:     appConfig.RateLimitBurst,
		PerSecond: appConfig.RateLimitPerSecond,
	}, logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Query:        queryService,
		VenueStore:   venueStore,
		Presence:     presenceTable,
		Users:        userService,
		RateLimit:    rateLimit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepPresence(signalCtx, presenceTable, appConfig.PresenceSweepEvery, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Int("venues", venueStore.Len()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// sweepPresence reaps expired presence records on an interval. Reads already
// filter expired entries; this only bounds table growth.
func sweepPresence(ctx context.Context, table *presence.Table, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := table.Sweep(); reaped > 0 {
				logger.Debug("presence records reaped", zap.Int("count", reaped))
			}
		}
	}
}
