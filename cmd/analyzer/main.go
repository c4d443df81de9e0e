// Command analyzer runs the C5 HTTP surface: one endpoint turning an image
// upload into a full threat report via the C4 pipeline. Grounded on the
// teacher's cmd/appserver/main.go wiring shape (config → dependencies →
// http.Server → signal-driven graceful shutdown), simplified since this
// process has no application/system-manager layer to attach to.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/LucasBiason/threat-modeling-ai/internal/analyzerapi"
	"github.com/LucasBiason/threat-modeling-ai/internal/pipeline"
	"github.com/LucasBiason/threat-modeling-ai/internal/provider"
	"github.com/LucasBiason/threat-modeling-ai/internal/retrieval"
	"github.com/LucasBiason/threat-modeling-ai/pkg/cache"
	"github.com/LucasBiason/threat-modeling-ai/pkg/config"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
	"github.com/LucasBiason/threat-modeling-ai/pkg/metrics"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8081)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log_ := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	listenAddr := determineAddr(*addr, cfg.Server)

	providers := buildProviders(cfg)
	limiters := provider.NewLimiters(providerNames(providers), 1.0, 2)

	cacheTTL := time.Duration(cfg.Cache.DefaultTTL) * time.Second
	respCache := cache.New(cfg.Cache.RedisURL, cacheTTL, log_)

	retrievalIndex := retrieval.New(
		cfg.RAG.KnowledgeBasePath,
		cfg.RAG.KnowledgeBasePath+"/.index.json",
		cfg.RAG.ChunkSize,
		cfg.RAG.ChunkOverlap,
		log_,
	)

	p := &pipeline.Pipeline{
		Guardrail: &pipeline.GuardrailStage{Providers: providers, Limiters: limiters, Log: log_},
		Diagram:   &pipeline.DiagramStage{Providers: providers, Limiters: limiters, Cache: respCache, CacheTTL: cacheTTL, Log: log_},
		Stride:    &pipeline.StrideStage{Providers: providers, Limiters: limiters, Cache: respCache, CacheTTL: cacheTTL, Retrieval: retrievalIndex, Log: log_},
		Dread:     &pipeline.DreadStage{Providers: providers, Limiters: limiters, Cache: respCache, CacheTTL: cacheTTL, Log: log_},
		Log:       log_,
	}

	recorder := metrics.NewRecorder(nil)
	allowedTypes := make(map[string]bool, len(cfg.Upload.AllowedImageTypes))
	for _, t := range cfg.Upload.AllowedImageTypes {
		allowedTypes[strings.TrimSpace(t)] = true
	}
	uploadCfg := analyzerapi.Config{MaxUploadBytes: cfg.Upload.MaxUploadSizeBytes(), AllowedTypes: allowedTypes}
	router := analyzerapi.NewRouter(p, uploadCfg, log_)

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/", router)
	handler := recorder.InstrumentHandler(mux)

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	go func() {
		log_.Infof("analyzer listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.WithError(err).Fatal("analyzer http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log_.WithError(err).Fatal("analyzer shutdown failed")
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
	return ":8081"
}

func buildProviders(cfg *config.Settings) []provider.Provider {
	var providers []provider.Provider
	if cfg.LLM.GeminiAPIKey != "" {
		providers = append(providers, provider.NewGeminiProvider(cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel, cfg.LLM.Temperature))
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		providers = append(providers, provider.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel, cfg.LLM.Temperature))
	}
	if cfg.LLM.OllamaBaseURL != "" {
		providers = append(providers, provider.NewOllamaProvider(cfg.LLM.OllamaBaseURL, cfg.LLM.OllamaModel, cfg.LLM.Temperature))
	}
	return providers
}

func providerNames(providers []provider.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}
