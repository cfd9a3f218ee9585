package common

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"strings"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/database"
	"premium-referral-go/internal/formance"
	"premium-referral-go/internal/fraud"
	"premium-referral-go/internal/gateway"
	"premium-referral-go/internal/metrics"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/reconcile"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/wallet"
	"premium-referral-go/internal/webhook"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "premium_referral"

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the fully wired application graph.
type Services struct {
	DbService  *database.Service
	Gateway    *gateway.Service // nil when no gateway secret is configured
	Journal    *formance.Journal
	Catalog    *catalog.Catalog
	Registry   *prometheus.Registry
	Observer   *metrics.PrometheusObserver
	Calculator *referral.Calculator
	Referrals  *referral.Service
	Premium    *premium.Service
	Wallet     *wallet.Service
	Fraud      *fraud.Checker
	Reconciler *webhook.Reconciler
	Verifier   *webhook.Verifier // nil when no webhook secret is configured
	Job        *reconcile.Job
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	svc := &Services{DbService: dbService}

	svc.Catalog, err = loadCatalog(cfg.Webhook.CatalogFile)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Registry = prometheus.NewRegistry()
	svc.Observer, err = metrics.NewPrometheusObserver(metricsNamespace, svc.Registry)
	if err != nil {
		svc.Close()
		return nil, err
	}

	// interface values stay nil unless a backend is configured
	var (
		webhookGateway webhook.Gateway
		subscriptions  premium.SubscriptionGateway
		checkout       wallet.CheckoutGateway
		journal        referral.Journal
	)

	if cfg.Gateway.SecretKey != "" {
		svc.Gateway, err = gateway.NewService(cfg.Gateway)
		if err != nil {
			svc.Close()
			return nil, err
		}
		webhookGateway = svc.Gateway
		subscriptions = svc.Gateway
		checkout = svc.Gateway
	} else {
		zap.L().Warn("GATEWAY_SECRET_KEY not set, running without gateway callbacks")
	}

	if cfg.Gateway.WebhookSecret != "" {
		svc.Verifier, err = webhook.NewVerifier(cfg.Gateway.WebhookSecret, cfg.Gateway.WebhookTolerance)
		if err != nil {
			svc.Close()
			return nil, err
		}
	} else {
		zap.L().Warn("GATEWAY_WEBHOOK_SECRET not set, gateway deliveries cannot be authenticated")
	}

	if cfg.Referral.JournalEnabled {
		svc.Journal, err = formance.NewJournal(ctx, cfg.Formance)
		if err != nil {
			svc.Close()
			return nil, err
		}
		journal = svc.Journal
	}

	svc.Calculator = referral.NewCalculator(dbService, dbService, journal, nil)
	svc.Referrals = referral.NewService(dbService, journal)
	svc.Premium = premium.NewService(dbService, subscriptions, nil)
	svc.Wallet = wallet.NewService(wallet.Params{
		Accounts: dbService,
		Ledger:   dbService,
		Catalog:  svc.Catalog,
		Checkout: checkout,
	})
	svc.Fraud = fraud.NewChecker(dbService, dbService, 0)

	svc.Reconciler, err = webhook.NewReconciler(webhook.Params{
		Accounts:    dbService,
		Ledger:      dbService,
		Gateway:     webhookGateway,
		Commissions: svc.Calculator,
		Catalog:     svc.Catalog,
		Observer:    svc.Observer,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Job = reconcile.NewJob(reconcile.JobConfig{
		Accounts:     dbService,
		Interval:     cfg.Reconciler.SweepInterval,
		MonthlyCoins: cfg.Reconciler.MonthlyCoins,
		Observer:     svc.Observer,
	})

	zap.L().Info("Services initialized",
		zap.Bool("gateway", svc.Gateway != nil),
		zap.Bool("webhook_signatures", svc.Verifier != nil),
		zap.Bool("journal", svc.Journal != nil),
		zap.Int("packages", len(svc.Catalog.Packages())))
	return svc, nil
}

// InitializeDatabaseOnly initializes just the database service without any remote backend.
// Useful for read-only operations like reports
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Journal != nil {
		cs.Journal.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// loadCatalog reads the package allow-list, falling back to the built-in one when the file is absent.
func loadCatalog(path string) (*catalog.Catalog, error) {
	c, err := catalog.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("Catalog file not found, using built-in packages", zap.String("path", path))
			return catalog.Default(), nil
		}
		return nil, err
	}
	zap.L().Info("Catalog loaded", zap.String("path", path), zap.Int("packages", len(c.Packages())))
	return c, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
