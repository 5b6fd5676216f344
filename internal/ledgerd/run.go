// Package ledgerd assembles the encrypted ledger HTTP service from configuration.
package ledgerd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/internal/faults"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, cfg, logger, listener)
}

// serve expects a validated cfg and owns listener.
func serve(ctx context.Context, cfg Config, logger *zap.Logger, listener net.Listener) error {
	defer func() { _ = listener.Close() }()

	fieldCipher, transport, err := loadCiphers(cfg, logger)
	if err != nil {
		return err
	}
	store, cleanup, err := openStore(ctx, cfg, fieldCipher)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := cleanup(); closeErr != nil {
			logger.Warn("database close error", zap.Error(closeErr))
		}
	}()

	service, err := ledger.NewService(store, transport, time.Now, ledger.WithOperationLogger(oplog.NewZapLogger(logger)))
	if err != nil {
		return err
	}
	mapperOptions := []faults.MapperOption{faults.WithLogger(logger)}
	if cfg.MaskStoreFailures {
		mapperOptions = append(mapperOptions, faults.WithMaskedStoreFailures())
	}
	mapper := faults.NewMapper(time.Now, mapperOptions...)
	router := httpapi.NewRouter(httpapi.Config{AllowedOrigins: cfg.AllowedOrigins}, httpapi.NewHandler(service, mapper, logger))

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening",
			zap.String("addr", listener.Addr().String()),
			zap.String("store_engine", cfg.StoreEngine),
			zap.String("transport_public_key", transport.PublicKey()),
		)
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func openStore(ctx context.Context, cfg Config, fieldCipher ledger.FieldCipher) (ledger.Store, func() error, error) {
	if cfg.StoreEngine == StoreEnginePgx {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		cleanup := func() error {
			pool.Close()
			return nil
		}
		store, err := pgstore.New(pool, fieldCipher)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("schema: %w", err)
		}
		return store, cleanup, nil
	}

	db, cleanup, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	store, err := gormstore.New(db, fieldCipher)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, cleanup, nil
}
