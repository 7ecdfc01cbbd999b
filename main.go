package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/blockchain_listener"
	"github.com/ferreirogomes/custodia/config"
	"github.com/ferreirogomes/custodia/events"
	"github.com/ferreirogomes/custodia/handlers"
	"github.com/ferreirogomes/custodia/idempotency"
	"github.com/ferreirogomes/custodia/logging"
	"github.com/ferreirogomes/custodia/metrics"
	"github.com/ferreirogomes/custodia/services"
	"github.com/ferreirogomes/custodia/storage"
)

var rootCmd = &cobra.Command{
	Use:           "custodia",
	Short:         "Custódia e tokenização de ativos com garantia documental",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sobe a API HTTP e o listener de custódia",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Aplica as migrações do banco e sai",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		db, err := storage.NewDB(cfg.DBDriver, cfg.DBDSN, log)
		if err != nil {
			return err
		}
		log.Info("migrações aplicadas")
		return db.Close()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	db, err := storage.NewDB(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer db.Close()

	var records idempotency.Store = idempotency.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rs, err := idempotency.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.IdempotencyTTL)
		if err != nil {
			return err
		}
		defer rs.Close()
		records = rs
		log.Info("recibos do ledger no redis", zap.String("addr", cfg.RedisAddr))
	} else {
		log.Warn("CUSTODIA_REDIS_ADDR vazio; recibos do ledger ficam em memória")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	custody, err := services.NewKeyCustody(cfg.SolanaCustodyKeys)
	if err != nil {
		return err
	}
	solanaLedger, err := services.NewSolanaLedger(cfg.SolanaRPCURL, cfg.SolanaIssuerKey, custody, cfg.SolanaMintDecimals, cfg.SolanaConfirmTimeout, log)
	if err != nil {
		return err
	}
	ledger := services.NewIdempotentLedger(solanaLedger, records, m, log)

	identity, err := services.NewStaticIdentity(cfg.IdentityRoles)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	unsubscribe, err := bus.SubscribeSteps(func(ev events.StepEvent) {
		log.Info("etapa da carta de liberação",
			zap.String("letter_id", ev.LetterID), zap.String("step", ev.Step),
			zap.String("phase", string(ev.Phase)), zap.String("error", ev.Error))
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	tokens := services.NewTokenLifecycleService(db, ledger, m, log)
	router := handlers.NewRouter(handlers.Deps{
		Bundles:    services.NewBundleService(db, identity, log),
		Tokens:     tokens,
		Letters:    services.NewReleaseLetterService(db, tokens, bus, m, log),
		Operations: services.NewOperationService(db, log),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, log)

	listener := blockchain_listener.NewCustodyListener(db, ledger, cfg.ListenerInterval, log)
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Error("listener de custódia falhou", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("servidor HTTP iniciado", zap.String("addr", cfg.HTTPAddr), zap.String("issuer", solanaLedger.IssuerWallet()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("servidor HTTP: %w", err)
	}
	log.Info("encerrando servidor HTTP")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
