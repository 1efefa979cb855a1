package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"threatforge/internal/assembler"
	"threatforge/internal/config"
	"threatforge/internal/llmclient"
	"threatforge/internal/orchestrator"
	"threatforge/internal/repository/modelstore"
	"threatforge/internal/server"
	"threatforge/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open model store: %v", err)
	}
	defer store.Close()

	resolver := newResolver(cfg)
	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	defer provider.Close()

	hub := server.NewProgressHub()
	svc := orchestrator.New(store, assembler.New(resolver), provider, orchestrator.Options{
		PoolSize:        cfg.PoolSize,
		ProviderTimeout: cfg.ProviderTimeout,
		Notifier:        hub.Publish,
	})

	mux := http.NewServeMux()
	server.New(svc, hub).Register(mux)

	h := withCORS(mux)
	log.Printf("Starting API server on %s (provider %s)", cfg.Port, provider.Name())
	log.Fatal(http.ListenAndServe(cfg.Port, h2c.NewHandler(h, &http2.Server{})))
}

func newStore(cfg *config.Config) (*modelstore.Store, error) {
	if cfg.Store.PostgresDSN == "" {
		log.Printf("No Postgres DSN configured; using in-memory model store")
		return modelstore.New(), nil
	}
	return modelstore.NewPostgres(cfg.Store.PostgresDSN)
}

func newResolver(cfg *config.Config) storage.Resolver {
	if !cfg.Assets.Enabled {
		log.Printf("No asset store configured; using in-memory storage")
		return storage.NewMemoryStore()
	}
	s3, err := storage.NewS3Store(storage.S3Config{
		Endpoint:  cfg.Assets.Endpoint,
		Region:    cfg.Assets.Region,
		AccessKey: cfg.Assets.AccessKey,
		SecretKey: cfg.Assets.SecretKey,
		Bucket:    cfg.Assets.Bucket,
		UseSSL:    cfg.Assets.UseSSL,
	})
	if err != nil {
		log.Printf("Asset store unavailable (%v); using in-memory storage", err)
		return storage.NewMemoryStore()
	}
	return s3
}

func newProvider(cfg *config.Config) (llmclient.Provider, error) {
	switch strings.ToLower(cfg.Provider.Name) {
	case "openai":
		model := cfg.Provider.Model
		if model == "" {
			model = "gpt-4o"
		}
		return llmclient.NewOpenAIProvider(cfg.Provider.OpenAIAPIKey, model), nil
	case "fake":
		return llmclient.NewFakeProvider(`{"threats":[],"summary":"","recommendations":[]}`), nil
	default:
		model := cfg.Provider.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return llmclient.NewGeminiProvider(context.Background(), cfg.Provider.GeminiAPIKey, model)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
