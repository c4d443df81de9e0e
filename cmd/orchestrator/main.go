// Command orchestrator runs the C10 HTTP surface plus the C7 scheduler and
// C8 worker: it accepts uploads, persists jobs, claims and drives them
// through the analyzer, and serves analyses/notifications back to clients.
// Grounded on the teacher's cmd/appserver/main.go wiring shape.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LucasBiason/threat-modeling-ai/internal/jobstore"
	"github.com/LucasBiason/threat-modeling-ai/internal/notification"
	"github.com/LucasBiason/threat-modeling-ai/internal/orchestratorapi"
	"github.com/LucasBiason/threat-modeling-ai/internal/scheduler"
	"github.com/LucasBiason/threat-modeling-ai/internal/worker"
	"github.com/LucasBiason/threat-modeling-ai/pkg/config"
	"github.com/LucasBiason/threat-modeling-ai/pkg/dbconn"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
	"github.com/LucasBiason/threat-modeling-ai/pkg/metrics"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log_ := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	rootCtx := context.Background()
	db, err := dbconn.Open(rootCtx, cfg.Database.URL)
	if err != nil {
		log_.WithError(err).Fatal("connect to postgres")
	}
	defer db.Close()
	dbconn.ConfigurePool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, time.Hour)

	if cfg.Database.MigrateOnStart {
		if err := jobstore.Migrate(db); err != nil {
			log_.WithError(err).Fatal("run migrations")
		}
	}

	store := jobstore.NewStore(db, log_)

	sqlxDB := sqlx.NewDb(db, "postgres")
	notifRepo := notification.NewRepository(sqlxDB, log_)
	notifService := notification.NewService(notifRepo, log_)

	blobs, err := orchestratorapi.NewBlobStore(cfg.Upload.StorageRoot)
	if err != nil {
		log_.WithError(err).Fatal("initialise blob store")
	}

	analyzerClient := worker.NewAnalyzerClient(cfg.AnalyzerURL)
	processor := worker.New(store, notifService, analyzerClient, log_)
	dispatcher := worker.NewAsyncDispatcher(processor, log_)

	sched := scheduler.New(store, dispatcher, log_)
	if err := sched.Start(rootCtx); err != nil {
		log_.WithError(err).Fatal("start scheduler")
	}

	listenAddr := determineAddr(*addr, cfg.Server)

	recorder := metrics.NewRecorder(nil)
	uploadCfg := orchestratorapi.Config{MaxUploadBytes: cfg.Upload.MaxUploadSizeBytes()}
	router := orchestratorapi.NewRouter(store, notifRepo, blobs, db, uploadCfg, log_)
	corsRouter := orchestratorapi.WrapCORS(router, cfg.CORSOrigins)

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/", corsRouter)
	handler := recorder.InstrumentHandler(mux)

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log_.Infof("orchestrator listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.WithError(err).Fatal("orchestrator http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		log_.WithError(err).Warn("scheduler shutdown")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log_.WithError(err).Fatal("orchestrator shutdown failed")
	}
}

func determineAddr(flagAddr string, server config.ServerConfig) string {
	if flagAddr != "" {
		return flagAddr
	}
	if server.Port != 0 {
		host := server.Host
		if host == "" {
			host = "0.0.0.0"
		}
		return host + ":" + strconv.Itoa(server.Port)
	}
	return ":8080"
}
