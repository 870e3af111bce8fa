package main

import (
	"context"
	"fmt"

	"github.com/tournevent/fulfillment/internal/account"
	"github.com/tournevent/fulfillment/internal/config"
	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/pakpost"
	"github.com/tournevent/fulfillment/pkg/shipper/tcs"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Attributes()...)
}

func initStore(cfg *config.Config) (*gorm.DB, error) {
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func initShipperRegistry(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) *shipper.Registry {
	registry := shipper.NewRegistry()

	retry := shipper.RetryPolicy{
		MaxAttempts:     uint(cfg.CarrierRetries),
		InitialInterval: cfg.CarrierRetryMinGap,
		MaxInterval:     cfg.CarrierRetryMaxGap,
	}

	if cfg.PakPostEnabled {
		registry.Register(pakpost.New(pakpost.Config{
			BaseURL:        cfg.PakPostBaseURL,
			ClientID:       cfg.PakPostClientID,
			ClientSecret:   cfg.PakPostClientSecret,
			UseMock:        cfg.PakPostUseMock,
			Timeout:        cfg.CarrierTimeout,
			TokenTTL:       cfg.CarrierTokenTTL,
			RateLimit:      cfg.CarrierRateLimit,
			RateBurst:      cfg.CarrierRateBurst,
			Retry:          retry,
			OnTokenRefresh: metrics.RecordTokenRefresh,
		}, logger, tracer))
	}

	if cfg.TCSEnabled {
		registry.Register(tcs.New(tcs.Config{
			BaseURL:     cfg.TCSBaseURL,
			Username:    cfg.TCSUsername,
			Password:    cfg.TCSPassword,
			AccountNo:   cfg.TCSAccountNo,
			BearerToken: cfg.TCSBearerToken,
			FeePath:     cfg.TCSFeePath,
			UseMock:     cfg.TCSUseMock,
			Timeout:     cfg.CarrierTimeout,
			TokenTTL:    cfg.CarrierTokenTTL,
			RateLimit:   cfg.CarrierRateLimit,
			RateBurst:   cfg.CarrierRateBurst,
			Retry:       retry,
			Sender: tcs.Sender{
				Name:     cfg.SenderName,
				Address:  cfg.SenderAddress,
				City:     cfg.SenderCity,
				Province: cfg.SenderProvince,
				Zip:      cfg.SenderZip,
				Mobile:   cfg.SenderMobile,
			},
			OnTokenRefresh: metrics.RecordTokenRefresh,
		}, logger, tracer))
	}

	return registry
}

// initNotifier wires SMTP and NATS when configured and falls back to log
// sinks otherwise. The returned func closes the NATS connection.
func initNotifier(cfg *config.Config, logger *otelzap.Logger) (*notify.Notifier, func(), error) {
	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		})
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
	}

	var events notify.Publisher = notify.NewLogPublisher(logger)
	closeEvents := func() {}
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		events = notify.NewNATSPublisher(nc)
		closeEvents = func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("Failed to drain NATS connection", zap.Error(err))
			}
		}
	}

	return notify.NewNotifier(notify.Config{
		From:       cfg.MailFrom,
		AdminEmail: cfg.AdminEmail,
		StoreName:  cfg.StoreName,
		LoginURL:   cfg.LoginURL,
	}, mailer, events), closeEvents, nil
}

func initOrchestrator(
	cfg *config.Config,
	db *gorm.DB,
	registry *shipper.Registry,
	notifier *notify.Notifier,
	metrics *telemetry.Metrics,
	logger *otelzap.Logger,
	tracer trace.Tracer,
) *fulfillment.Orchestrator {
	return fulfillment.New(fulfillment.Config{
		StoreName: cfg.StoreName,
	}, fulfillment.Deps{
		Registry:  registry,
		Accounts:  account.NewProvisioner(store.NewAccountRepository(db), logger),
		Orders:    store.NewOrderRepository(db),
		Shipments: store.NewShipmentRepository(db),
		Products:  store.NewProductRepository(db),
		Notifier:  notifier,
		Metrics:   metrics,
		Logger:    logger,
		Tracer:    tracer,
	})
}
