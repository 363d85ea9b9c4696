// Package app wires configuration into a running adapter: the local and
// remote log sinks, the delegate selected by the backend URI and, for object
// stores, the attribute store and lock manager the delegate needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/fsbridge/backends"
	"github.com/ebogdum/fsbridge/backends/localfs"
	"github.com/ebogdum/fsbridge/backends/noop"
	"github.com/ebogdum/fsbridge/backends/s3"
	"github.com/ebogdum/fsbridge/config"
	"github.com/ebogdum/fsbridge/core"
	fslog "github.com/ebogdum/fsbridge/core/log"
	"github.com/ebogdum/fsbridge/locks"
	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metadata/memory"
	"github.com/ebogdum/fsbridge/metadata/postgres"
	raftstore "github.com/ebogdum/fsbridge/metadata/raft"
	redisstore "github.com/ebogdum/fsbridge/metadata/redis"
	"github.com/ebogdum/fsbridge/metadata/sqlite"
)

// App holds the components built from an AppConfig.
type App struct {
	Adapter   *core.Adapter
	Redaction fslog.RedactionMode

	shipper *fslog.Shipper
	store   metadata.Store
	locker  locks.Manager
	logger  *zap.Logger
}

// NewLogger creates a zap logger based on configuration
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// New builds every component named by cfg. On failure the components built
// so far are closed.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (app *App, err error) {
	redaction, err := fslog.ParseRedactionMode(cfg.Log.PathRedaction)
	if err != nil {
		return nil, err
	}

	app = &App{Redaction: redaction, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	app.shipper, err = NewShipper(ctx, cfg.Logging.Remote, logger)
	if err != nil {
		return app, err
	}

	delegate, uri, err := app.newDelegate(ctx, cfg, logger)
	if err != nil {
		return app, err
	}

	policy := core.Policy{LenientParentCreation: cfg.Adapter.LenientParentCreation}
	app.Adapter, err = core.NewAdapter(ctx, delegate, uri, fslog.New("adapter", logger, app.shipper), policy)
	if err != nil {
		return app, fmt.Errorf("failed to initialize adapter: %w", err)
	}

	logger.Info("Adapter ready",
		zap.String("backend", cfg.Backend.BackendType()),
		zap.Stringer("uri", app.Adapter.URI()),
		zap.Stringer("policy", policy))
	return app, nil
}

// NewShipper creates the remote log shipper, or nil when remote logging is
// disabled.
func NewShipper(ctx context.Context, cfg config.RemoteLogConfig, logger *zap.Logger) (*fslog.Shipper, error) {
	var factory fslog.ClientFactory
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "http":
		f, err := fslog.NewHTTPClientFactory(fslog.HTTPClientConfig{
			Endpoint:  cfg.Endpoint,
			AuthToken: cfg.Token,
			Timeout:   cfg.DeliveryTimeout,
		})
		if err != nil {
			return nil, err
		}
		factory = f
	case "redis":
		f, err := fslog.DialRedisClientFactory(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Stream, cfg.StreamMaxLen)
		if err != nil {
			return nil, err
		}
		factory = f
	default:
		return nil, fmt.Errorf("unknown remote log type %q", cfg.Type)
	}

	opts := fslog.DefaultShipperOptions()
	if cfg.QueueSize > 0 {
		opts.QueueSize = cfg.QueueSize
	}
	if cfg.DeliveryTimeout > 0 {
		opts.DeliveryTimeout = cfg.DeliveryTimeout
	}
	if cfg.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.MaxAttempts
	}
	if len(cfg.Severities) > 0 {
		opts.Severities = nil
		for _, name := range cfg.Severities {
			severity, err := fslog.ParseSeverity(name)
			if err != nil {
				_ = factory.Close()
				return nil, fmt.Errorf("logging.remote.severities: %w", err)
			}
			opts.Severities = append(opts.Severities, severity)
		}
	}

	logger.Info("Remote log shipping enabled",
		zap.String("type", cfg.Type),
		zap.Int("queue_size", opts.QueueSize),
		zap.Strings("severities", cfg.Severities))
	return fslog.NewShipper(factory, opts, logger.Named("shipper")), nil
}

func (a *App) newDelegate(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (backends.FileSystem, *url.URL, error) {
	switch cfg.Backend.BackendType() {
	case "noop":
		logger.Warn("No backend configured; every operation will fail")
		return noop.NewNoopFS("noop"), &url.URL{Scheme: "noop", Path: "/"}, nil

	case "localfs":
		uri, err := url.Parse(cfg.Backend.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid backend uri: %w", err)
		}
		return localfs.NewLocalFS(localfs.Options{BlockSize: cfg.Backend.LocalFS.BlockSize}, logger.Named("localfs")), uri, nil

	case "s3":
		uri, err := url.Parse(cfg.Backend.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid backend uri: %w", err)
		}
		if a.store, err = NewAttributeStore(ctx, cfg.AttributeStore, logger); err != nil {
			return nil, nil, err
		}
		if a.locker, err = NewLockManager(ctx, cfg.DLM, logger); err != nil {
			return nil, nil, err
		}
		s3cfg := cfg.Backend.S3
		opts := s3.Options{
			Region:               s3cfg.Region,
			Endpoint:             s3cfg.Endpoint,
			AccessKey:            s3cfg.AccessKey,
			SecretKey:            s3cfg.SecretKey,
			DisableSSL:           s3cfg.DisableSSL,
			ServerSideEncryption: s3cfg.ServerSideEncryption,
			ACL:                  s3cfg.ACL,
			KMSKeyID:             s3cfg.KMSKeyID,
			BlockSize:            s3cfg.BlockSize,
			DefaultOwner:         s3cfg.DefaultOwner,
			DefaultGroup:         s3cfg.DefaultGroup,
		}
		return s3.NewS3FS(opts, a.store, a.locker, logger.Named("s3")), uri, nil
	}
	return nil, nil, fmt.Errorf("unsupported backend uri %q", cfg.Backend.URI)
}

// NewAttributeStore opens the attribute store selected by cfg.Type.
func NewAttributeStore(ctx context.Context, cfg config.AttributeStoreConfig, logger *zap.Logger) (metadata.Store, error) {
	logger = logger.Named("attributes")
	switch cfg.Type {
	case "memory":
		logger.Warn("Using the in-memory attribute store; attributes are lost on restart")
		return memory.NewMemoryStore(), nil
	case "sqlite":
		return sqlite.NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return postgres.NewPostgresStore(ctx, cfg.DSN, logger)
	case "redis":
		return redisstore.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix, logger)
	case "raft":
		return raftstore.NewRaftStore(raftstore.Config{
			NodeID:       cfg.Raft.NodeID,
			BindAddr:     cfg.Raft.BindAddr,
			DataDir:      cfg.Raft.DataDir,
			Bootstrap:    cfg.Raft.Bootstrap,
			Peers:        cfg.Raft.Peers,
			ApplyTimeout: cfg.Raft.ApplyTimeout,
		}, logger)
	}
	return nil, fmt.Errorf("unknown attribute store type %q", cfg.Type)
}

// NewLockManager creates the lock manager selected by cfg.Type.
func NewLockManager(ctx context.Context, cfg config.DLMConfig, logger *zap.Logger) (locks.Manager, error) {
	switch cfg.Type {
	case "local":
		return locks.NewLocalManagerWithTTL(cfg.TTL), nil
	case "redis":
		return locks.NewRedisManager(ctx, locks.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		}, logger.Named("locks"))
	}
	return nil, fmt.Errorf("unknown lock manager type %q", cfg.Type)
}

// ShipperStats reports remote log delivery counters; zero when remote
// logging is disabled.
func (a *App) ShipperStats() fslog.ShipperStats {
	if a.shipper == nil {
		return fslog.ShipperStats{}
	}
	return a.shipper.Stats()
}

// Close closes the adapter, then the stores it used, then drains the
// remote log queue until ctx expires.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Adapter != nil {
		if err := a.Adapter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("adapter: %w", err))
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("lock manager: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("attribute store: %w", err))
		}
	}
	if a.shipper != nil {
		if err := a.shipper.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log shipper: %w", err))
		}
	}
	return errors.Join(errs...)
}
