// main wires the invoice risk-synthesis service: factor sources, the ledger
// recorder, the assessment archive, the event hub, and the HTTP server.
// Business logic lives in the internal packages; main only assembles them.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sashabaranov/go-openai"

	"arbiter/internal/assessment"
	"arbiter/internal/assessment/handler"
	assessmentmetrics "arbiter/internal/assessment/metrics"
	"arbiter/internal/events"
	"arbiter/internal/explain"
	httpapi "arbiter/internal/http"
	"arbiter/internal/ledger"
	ledgermetrics "arbiter/internal/ledger/metrics"
	ledgerstore "arbiter/internal/ledger/store"
	"arbiter/internal/ledger/xdc"
	"arbiter/internal/platform/config"
	"arbiter/internal/platform/httpserver"
	"arbiter/internal/platform/kafka"
	"arbiter/internal/platform/logger"
	"arbiter/internal/platform/metrics"
	platformredis "arbiter/internal/platform/redis"
	"arbiter/internal/sources"
	"arbiter/internal/sources/credit"
	"arbiter/internal/sources/history"
	"arbiter/internal/sources/identity"
	"arbiter/internal/sources/market"
	"arbiter/internal/storage"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		fatal(log, "invalid configuration", err)
	}

	// Ledger backend. Dev mode, or a missing endpoint, runs against the
	// in-process ledger so the service starts with no external dependencies.
	var chain ledger.Client
	if cfg.DevMode || cfg.Ledger.Endpoint == "" {
		if !cfg.DevMode {
			log.Warn("no ledger endpoint configured, recording to the in-process ledger")
		}
		chain = ledger.NewMemory()
	} else {
		chain = xdc.New(cfg.Ledger)
	}

	// Reference store: Redis when configured, otherwise in-memory. The
	// ledger itself still deduplicates, so losing the store only costs a
	// shortcut.
	var refs ledgerstore.ReferenceStore = ledgerstore.NewInMemory()
	var redisClient *platformredis.Client
	if !cfg.DevMode {
		rc, err := platformredis.New(context.Background(), cfg.Redis)
		if err != nil {
			fatal(log, "redis connection failed", err)
		}
		if rc != nil {
			redisClient = rc
			refs = ledgerstore.NewRedis(rc.Client, 0)
		}
	}

	// Assessment archive: Postgres when configured, otherwise in-memory.
	var archive assessment.Archive = storage.NewInMemoryArchive()
	var pgArchive *storage.PostgresArchive
	if !cfg.DevMode && cfg.Postgres.DSN != "" {
		pg, err := storage.NewPostgresArchive(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			fatal(log, "postgres archive init failed", err)
		}
		pgArchive = pg
		archive = pg
	}

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		fatal(log, "kafka producer init failed", err)
	}
	var sink events.Sink
	if producer != nil {
		sink = producer
	}
	hub := events.NewHub(sink, log)

	var explainer assessment.Explainer
	if cfg.OpenAI.APIKey != "" {
		explainer = explain.NewOpenAI(openai.NewClient(cfg.OpenAI.APIKey), cfg.OpenAI.Model, log)
	} else {
		explainer = explain.NewTemplate()
	}

	srcs := factorSources(cfg, chain, log)

	recorder := ledger.NewRecorder(chain, refs, cfg.Ledger, ledgermetrics.New(), log)
	service := assessment.NewService(cfg.Synthesis, srcs, recorder, explainer, archive, hub,
		assessmentmetrics.New(), log)

	router := httpapi.NewRouter(log, metrics.NewHTTP(), handler.New(service, hub, log))
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting arbiter",
		"addr", cfg.Addr,
		"dev_mode", cfg.DevMode,
		"ledger_endpoint", cfg.Ledger.Endpoint,
		"kafka_enabled", producer != nil,
		"openai_enabled", cfg.OpenAI.APIKey != "",
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if producer != nil {
		producer.Close(shutdownCtx)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pgArchive != nil {
		pgArchive.Close()
	}
	log.Info("stopped")
}

// factorSources builds the four factor sources. Dev mode swaps the remote
// providers for simulators; the history factor always reads the ledger the
// engine records to.
func factorSources(cfg config.Config, chain ledger.Client, log *slog.Logger) []assessment.FactorSource {
	src := cfg.Sources
	historySource := sources.NewAdapter(history.NewResolver(chain), src.History, log)

	if cfg.DevMode {
		return []assessment.FactorSource{
			sources.NewAdapter(&identity.Simulator{}, src.Identity, log),
			sources.NewAdapter(&credit.Simulator{}, src.Credit, log),
			sources.NewAdapter(&market.Simulator{}, src.Market, log),
			historySource,
		}
	}

	warnUnconfigured(log, "identity", src.Identity.BaseURL)
	warnUnconfigured(log, "credit", src.Credit.BaseURL)
	warnUnconfigured(log, "market", src.Market.BaseURL)
	return []assessment.FactorSource{
		sources.NewAdapter(identity.NewClient(src.Identity.BaseURL, src.IdentitySigningKey), src.Identity, log),
		sources.NewAdapter(credit.NewClient(src.Credit.BaseURL, src.Credit.APIKey), src.Credit, log),
		sources.NewAdapter(market.NewClient(src.Market.BaseURL, src.Market.APIKey), src.Market, log),
		historySource,
	}
}

func warnUnconfigured(log *slog.Logger, factor, baseURL string) {
	if baseURL == "" {
		log.Warn("factor source has no base URL configured, its factor will be unavailable",
			"factor", factor)
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
