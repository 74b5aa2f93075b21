package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mnexium/memory-substrate/internal/bus"
	"github.com/mnexium/memory-substrate/internal/claimorch"
	"github.com/mnexium/memory-substrate/internal/config"
	"github.com/mnexium/memory-substrate/internal/extraction"
	"github.com/mnexium/memory-substrate/internal/httpapi"
	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/memoryorch"
	"github.com/mnexium/memory-substrate/internal/retrieval"
	"github.com/mnexium/memory-substrate/internal/storage/postgres"
)

func main() {
	flag.Parse()

	cfg := config.Load()
	if cfg.Storage.DSN == "" {
		log.Fatal("MEMENTO_POSTGRES_DSN is required")
	}

	store, err := postgres.Open(cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	capability := buildSelector(cfg).Select(llm.Mode(cfg.LLM.AIMode))
	log.Printf("llm capability: %s (available=%t)", capability.Name(), capability.Available())

	eventBus := bus.New()
	extractor := extraction.New(capability)
	claims := claimorch.New(store, capability)
	memories := memoryorch.New(store, capability, eventBus, extractor, claims)
	retrievalSvc := retrieval.New(store, capability, cfg.Retrieval.UseRetrievalExpand)

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Store:            store,
		Bus:              eventBus,
		Memories:         memories,
		Claims:           claims,
		Retrieval:        retrievalSvc,
		Extraction:       extractor,
		DefaultProjectID: cfg.Project.DefaultProjectID,
		RateLimiter:      httpapi.NewRateLimiter(20, 40),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", addr, err)
	}

	go func() {
		log.Printf("memory substrate listening on %s", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

// buildSelector wires the configured provider credentials into a
// Selector, leaving a tag unset (None) when its credentials are absent so
// "auto" degrades per spec.
func buildSelector(cfg *config.Config) llm.Selector {
	var sel llm.Selector

	switch {
	case cfg.LLM.OpenAIAPIKey != "":
		provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:     cfg.LLM.OpenAIAPIKey,
			Model:      cfg.LLM.OpenAIModel,
			EmbedModel: cfg.LLM.OpenAIEmbedModel,
		})
		sel.Primary = llm.NewPrimary("openai", provider, provider)
	case cfg.LLM.AnthropicAPIKey != "":
		provider := llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey: cfg.LLM.AnthropicAPIKey,
			Model:  cfg.LLM.AnthropicModel,
		})
		// Anthropic has no embeddings endpoint; it still serves CallJSON.
		sel.Primary = llm.NewPrimary("anthropic", nil, provider)
	}

	ollama := llm.NewOllamaProvider(llm.OllamaConfig{
		BaseURL:    cfg.LLM.OllamaURL,
		Model:      cfg.LLM.OllamaModel,
		EmbedModel: cfg.LLM.OllamaEmbeddingModel,
	})
	if sel.Primary.Available() {
		sel.Secondary = llm.NewSecondary("ollama", ollama, ollama)
	} else {
		sel.Primary = llm.NewPrimary("ollama", ollama, ollama)
	}

	return sel
}
