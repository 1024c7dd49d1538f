package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/parking/internal/config"
	"github.com/MarkoPoloResearchLab/parking/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/parking/internal/httpapi"
	"github.com/MarkoPoloResearchLab/parking/internal/layout"
	"github.com/MarkoPoloResearchLab/parking/internal/notify"
	"github.com/MarkoPoloResearchLab/parking/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/parking/internal/zaplog"
	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagConfigFile     = "config"
	flagDatabaseURL    = "database-url"
	flagGRPCListenAddr = "grpc-listen-addr"
	flagHTTPListenAddr = "http-listen-addr"
	flagRedisURL       = "redis-url"
	flagAllowedOrigins = "allowed-origins"
	flagLockTimeout    = "lock-timeout"
	flagRequestTimeout = "request-timeout"
	flagLayout         = "layout"

	configKeyDatabaseURL    = "database_url"
	configKeyGRPCListenAddr = "grpc_listen_addr"
	configKeyHTTPListenAddr = "http_listen_addr"
	configKeyRedisURL       = "redis_url"
	configKeyAllowedOrigins = "allowed_origins"
	configKeyLockTimeout    = "lock_timeout"
	configKeyRequestTimeout = "request_timeout"

	defaultDatabaseURL    = "sqlite:///tmp/parking.db"
	defaultGRPCListenAddr = ":7000"
	defaultHTTPListenAddr = ":8080"
	defaultLockTimeout    = 3 * time.Second

	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

type runtimeConfig struct {
	DatabaseURL    string
	GRPCListenAddr string
	RedisURL       string
	LockTimeout    time.Duration
	HTTP           httpapi.Config
	Settings       *viper.Viper
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parkingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "parkingd",
		Short:         "Parking facility gate server (gRPC and HTTP)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfigFile, "", "optional config file (yaml, json or toml)")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "postgres:// or sqlite:// connection string")
	flags.Duration(flagLockTimeout, defaultLockTimeout, "row lock wait bound on PostgreSQL")
	cmd.Flags().String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	cmd.Flags().String(flagHTTPListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagRedisURL, "", "redis:// URL for event notifications (disabled when empty)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request timeout for the HTTP façade")

	cmd.AddCommand(newProvisionCommand(cfg))
	return cmd
}

func newProvisionCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or update floors, spots and gates from a layout file",
		RunE: func(cmd *cobra.Command, args []string) error {
			layoutPath, err := cmd.Flags().GetString(flagLayout)
			if err != nil {
				return err
			}
			return runProvision(cmd.Context(), cfg, layoutPath)
		},
	}
	cmd.Flags().String(flagLayout, "", "facility layout YAML file (required)")
	_ = cmd.MarkFlagRequired(flagLayout)
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:    "DATABASE_URL",
		configKeyGRPCListenAddr: "GRPC_LISTEN_ADDR",
		configKeyHTTPListenAddr: "HTTP_LISTEN_ADDR",
		configKeyRedisURL:       "REDIS_URL",
		configKeyAllowedOrigins: "ALLOWED_ORIGINS",
		configKeyLockTimeout:    "LOCK_TIMEOUT",
		configKeyRequestTimeout: "REQUEST_TIMEOUT",
	}
	for key, envName := range envBindings {
		if err := v.BindEnv(key, envName); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:    flagDatabaseURL,
		configKeyGRPCListenAddr: flagGRPCListenAddr,
		configKeyHTTPListenAddr: flagHTTPListenAddr,
		configKeyRedisURL:       flagRedisURL,
		configKeyAllowedOrigins: flagAllowedOrigins,
		configKeyLockTimeout:    flagLockTimeout,
		configKeyRequestTimeout: flagRequestTimeout,
	}
	for key, flagName := range flagBindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	if configFile, _ := cmd.Flags().GetString(flagConfigFile); strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.Settings = v
	cfg.DatabaseURL = defaultIfEmpty(v.GetString(configKeyDatabaseURL), defaultDatabaseURL)
	cfg.GRPCListenAddr = defaultIfEmpty(v.GetString(configKeyGRPCListenAddr), defaultGRPCListenAddr)
	cfg.RedisURL = strings.TrimSpace(v.GetString(configKeyRedisURL))
	cfg.LockTimeout = v.GetDuration(configKeyLockTimeout)
	if cfg.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}
	cfg.HTTP = httpapi.Config{
		ListenAddr:     defaultIfEmpty(v.GetString(configKeyHTTPListenAddr), defaultHTTPListenAddr),
		AllowedOrigins: httpapi.ParseAllowedOrigins(v.GetString(configKeyAllowedOrigins)),
		RequestTimeout: v.GetDuration(configKeyRequestTimeout),
	}
	return cfg.HTTP.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	gin.SetMode(gin.ReleaseMode)

	gormDB, cleanup, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := gormstore.Migrate(gormDB); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	pricing, err := config.NewPricingProvider(cfg.Settings)
	if err != nil {
		return err
	}
	if _, err := pricing.PricingSettings(ctx); err != nil {
		return fmt.Errorf("pricing settings: %w", err)
	}

	notifier, closeNotifier, err := buildNotifier(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	store := gormstore.New(gormDB, gormstore.WithLockTimeout(cfg.LockTimeout))
	parkingService, err := parking.NewService(store, pricing, time.Now,
		parking.WithOperationLogger(zaplog.NewOperationLogger(logger)),
		parking.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("parking service init: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	grpcserver.RegisterParkingServiceServer(grpcServer, grpcserver.NewParkingServer(parkingService))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return nil
	})
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.HTTP, parkingService, logger)
	})
	return group.Wait()
}

func runProvision(ctx context.Context, cfg *runtimeConfig, layoutPath string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	facility, err := layout.Load(layoutPath)
	if err != nil {
		return err
	}
	gormDB, cleanup, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	if err := gormstore.Migrate(gormDB); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	summary, err := layout.Apply(ctx, gormstore.New(gormDB), facility)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	logger.Info("layout provisioned",
		zap.String("layout", layoutPath),
		zap.Int("floors", summary.Floors),
		zap.Int("spots", summary.Spots),
		zap.Int("gates", summary.Gates),
	)
	return nil
}

func buildNotifier(ctx context.Context, redisURL string, logger *zap.Logger) (parking.Notifier, func(), error) {
	sinks := notify.Fanout{notify.NewLogNotifier(logger)}
	if redisURL == "" {
		return sinks, func() {}, nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	sinks = append(sinks, notify.NewRedisNotifier(client, logger))
	return sinks, func() { _ = client.Close() }, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		// SQLite serializes writers; one connection keeps transactions from
		// failing with SQLITE_BUSY under concurrent gates.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "parking.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Anything else is a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if filepath.IsAbs(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
