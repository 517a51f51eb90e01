package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/paysync/internal/api"
	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/punchamoorthee/paysync/internal/gateway"
	"github.com/punchamoorthee/paysync/internal/logging"
	"github.com/punchamoorthee/paysync/internal/notify"
	"github.com/punchamoorthee/paysync/internal/service"
	"github.com/punchamoorthee/paysync/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := store.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal("unable to connect to mongo", zap.Error(err))
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(dctx); err != nil {
			logger.Error("mongo disconnect failed", zap.Error(err))
		}
	}()

	db := mongoClient.Database(cfg.MongoDatabase)
	payments := store.NewPaymentStore(db)
	if err := payments.EnsureIndexes(ctx); err != nil {
		logger.Fatal("unable to create indexes", zap.Error(err))
	}
	acceptances := store.NewAcceptanceStore(db)
	instruments := store.NewInstrumentStore(db)

	// The ledger is optional. When disabled, the writer and acceptor report
	// "disabled" and never touch a connection.
	var (
		ledgerDB domain.LedgerDB      = disabledLedger{}
		invoices domain.InvoiceReader = disabledLedger{}
		entries  api.EntryLister
	)
	if cfg.Ledger.Enabled {
		if err := store.Migrate(cfg.Ledger.DSN); err != nil {
			logger.Fatal("ledger migration failed", zap.Error(err))
		}
		ledgerStore, err := store.NewLedgerStore(ctx, cfg.Ledger.DSN)
		if err != nil {
			logger.Fatal("unable to connect to ledger", zap.String("connection", cfg.Ledger.Connection), zap.Error(err))
		}
		defer ledgerStore.Close()
		ledgerDB, invoices, entries = ledgerStore, ledgerStore, ledgerStore
		logger.Info("ledger integration enabled", zap.String("connection", cfg.Ledger.Connection))
	}

	var alerter notify.Alerter = notify.NewLogAlerter(logger)
	if cfg.AlertWebhookURL != "" {
		alerter = notify.NewWebhookAlerter(cfg.AlertWebhookURL)
	}

	gw := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout, logger)
	acceptor := service.NewEngagementAcceptor(ledgerDB, cfg.Ledger, nil, logger)

	orchestrator := service.NewOrchestrator(cfg.Ledger, service.Deps{
		Gateways:    service.Gateways{Card: gw, Bank: gw},
		Payments:    payments,
		Instruments: instruments,
		Acceptances: acceptances,
		Invoices:    invoices,
		Ledger:      service.NewLedgerWriter(ledgerDB, cfg.Ledger, logger),
		Engagements: acceptor,
		Alerts:      alerter,
		Mail:        notify.NewLogMailer(logger),
		Log:         logger,
	})

	handler := api.NewHandler(api.Deps{
		Payments:     orchestrator,
		PaymentStore: payments,
		Instruments:  instruments,
		Engagements:  acceptor,
		Entries:      entries,
		Fees:         service.NewFeeSchedule(cfg.Fees),
		Log:          logger,
	})

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	handler.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// disabledLedger stands in for the ledger store when the integration is off.
// The writer and acceptor check the flag before opening a transaction.
type disabledLedger struct{}

func (disabledLedger) InTx(context.Context, func(domain.LedgerTx) error) error {
	return domain.ErrLedgerDisabled
}

func (disabledLedger) OpenInvoices(context.Context, []int64) ([]domain.InvoiceBalance, error) {
	return nil, domain.ErrLedgerDisabled
}
