package main

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/cache"
	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/internal/events"
	"github.com/tournevent/shipping/internal/purchase"
	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/internal/shipment"
	"github.com/tournevent/shipping/internal/shipping"
	"github.com/tournevent/shipping/internal/store"
	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/tournevent/shipping/pkg/shipper/mondialrelay"
	"github.com/tournevent/shipping/pkg/shipper/shippo"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(telemetry.LogConfig{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  cfg.LogOutput,
		Service: cfg.ServiceName,
		Version: cfg.Version,
	})
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// initStore opens the database and brings its schema up to date.
func initStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initCatalog(cfg *config.Config) (*config.Catalog, error) {
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	catalog = catalog.WithCountries(cfg.HomeCountry, cfg.SupportedCountries)
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shipping catalog: %w", err)
	}
	return catalog, nil
}

func initShipperRegistry(cfg *config.Config, accounts shipper.AccountSource, logger *otelzap.Logger) *shipper.Registry {
	registry := shipper.NewRegistry()

	// Registration order is the tie-break order of equal rates.
	var sp *shippo.Client
	if cfg.ShippoEnabled {
		sp = shippo.New(shippo.Config{
			APIKey:  cfg.ShippoAPIKey,
			BaseURL: cfg.ShippoBaseURL,
			Test:    cfg.ShippoTestMode,
			UseMock: cfg.ShippoUseMock,
			Timeout: cfg.PurchaseTimeout,
		}, logger, nil).WithAccounts(accounts)
		registry.Register(sp)
	}

	if cfg.MondialRelayEnabled {
		mr := mondialrelay.New(mondialrelay.Config{
			Enseigne:   cfg.MondialRelayEnseigne,
			PrivateKey: cfg.MondialRelayPrivateKey,
			Brand:      cfg.MondialRelayBrand,
			Endpoint:   cfg.MondialRelayEndpoint,
			UseMock:    cfg.MondialRelayUseMock,
			Timeout:    cfg.PurchaseTimeout,
		}, logger, nil).WithAccounts(accounts)
		registry.Register(mr)
	}

	// The aggregator must not rate with credentials stored for direct gateways.
	if sp != nil {
		for _, name := range registry.Names() {
			if name != sp.Name() {
				sp.WithoutCarriers(name)
			}
		}
	}

	return registry
}

// initReceipts prefers redis for webhook dedupe and falls back to the database.
func initReceipts(ctx context.Context, cfg *config.Config, st *store.Store, logger *otelzap.Logger) (shipping.ReceiptStore, func()) {
	if cfg.RedisAddr == "" {
		go purgeReceipts(ctx, st, receiptPurgeInterval, logger)
		return st, func() {}
	}
	rs, err := cache.NewRedisReceiptStore(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("Redis unavailable, keeping webhook receipts in the database",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err),
		)
		go purgeReceipts(ctx, st, receiptPurgeInterval, logger)
		return st, func() {}
	}
	return rs, func() { _ = rs.Close() }
}

const receiptPurgeInterval = time.Hour

// purgeReceipts drops expired database receipts until ctx is done.
func purgeReceipts(ctx context.Context, st *store.Store, interval time.Duration, logger *otelzap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PurgeReceipts(ctx)
			if err != nil {
				logger.Warn("Failed to purge webhook receipts", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("Purged webhook receipts", zap.Int64("count", n))
			}
		}
	}
}

func initPublisher(cfg *config.Config, logger *otelzap.Logger) (shipment.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(logger), func() {}
	}
	kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaStatusTopic)
	return kp, func() {
		if err := kp.Close(); err != nil {
			logger.Warn("Failed to close kafka writer", zap.Error(err))
		}
	}
}

func initService(
	cfg *config.Config,
	catalog *config.Catalog,
	registry *shipper.Registry,
	st *store.Store,
	receipts shipping.ReceiptStore,
	publisher shipment.Publisher,
	metrics *telemetry.Metrics,
	logger *otelzap.Logger,
) *shipping.Service {
	purchaser := purchase.New(registry, rating.NewSelector(catalog), purchase.Timeouts{
		Quote:    cfg.QuoteTimeout,
		Purchase: cfg.PurchaseTimeout,
	}, metrics, logger)

	return shipping.New(shipping.Deps{
		Registry:     registry,
		Catalog:      catalog,
		Purchaser:    purchaser,
		Lifecycle:    shipment.NewManager(st, publisher, metrics, logger),
		Shipments:    st,
		Products:     st,
		Audit:        st,
		Receipts:     receipts,
		Accounts:     st,
		Metrics:      metrics,
		Logger:       logger,
		TrackTimeout: cfg.TrackTimeout,
		ReceiptTTL:   cfg.WebhookDedupeTTL,
	})
}
