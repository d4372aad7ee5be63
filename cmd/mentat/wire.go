package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/broadcast"
	"github.com/hesiod-au/mentat/internal/catalog"
	mentatcontext "github.com/hesiod-au/mentat/internal/context"
	"github.com/hesiod-au/mentat/internal/diff"
	"github.com/hesiod-au/mentat/internal/embedding"
	"github.com/hesiod-au/mentat/internal/llm"
	"github.com/hesiod-au/mentat/internal/rank"
	"github.com/hesiod-au/mentat/internal/render"
	"github.com/hesiod-au/mentat/internal/repo"
	"github.com/hesiod-au/mentat/internal/selector"
	"github.com/hesiod-au/mentat/internal/symbols"
	"github.com/hesiod-au/mentat/internal/tokens"
)

// session bundles an engine with the collaborators whose lifetime the CLI
// owns. close releases them in reverse construction order.
type session struct {
	engine   *mentatcontext.Engine
	bus      *broadcast.Bus
	renderer *render.Renderer
	counter  tokens.Tokenizer
	close    func()
}

// newSession builds the assembly engine for one repository from the active
// configuration.
func newSession(root string) (*session, error) {
	bus := broadcast.New()
	closers := []func(){bus.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	enum := repo.NewEnumerator(logger)
	mapper := symbols.NewTreeSitterMapper(logger)
	cat := catalog.NewBuilder(enum, mapper, logger)

	var dctx *diff.Context
	if cfg.Context.DiffBaseline != "" {
		provider := diff.NewGitProvider(root, cfg.Context.DiffBaseline, logger)
		dctx = diff.NewContext(provider, logger)
	}

	annsFor := func(string) []diff.Annotation { return nil }
	if dctx != nil {
		annsFor = dctx.FileAnnotations
	}
	renderer := render.New(root, mapper, annsFor, logger)

	counter := tokens.NewFallback(tokens.NewTikTokenizer(), tokens.NewEstimator(), logger)

	ranker := rank.New(nil, logger)
	if cfg.Context.UseSimilarity {
		eng, err := embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
		}, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("similarity backend: %w", err)
		}

		var cache *embedding.Cache
		if cfg.Embedding.CachePath != "" {
			cache, err = embedding.OpenCache(cfg.Embedding.CachePath, logger)
			if err != nil {
				logger.Warn("embedding cache unavailable", zap.Error(err))
				cache = nil
			} else {
				closers = append(closers, func() { _ = cache.Close() })
			}
		}
		ranker = rank.New(embedding.NewIndex(eng, cache, logger), logger)
	}

	greedy := selector.NewGreedy(renderer, counter, logger)
	var sel selector.Selector = greedy
	if cfg.Context.UseLLMSelection {
		client, err := llm.NewGeminiClient(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.GetLLMTimeout(),
		}, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("selection client: %w", err)
		}
		sel = selector.NewLLMAssisted(client, greedy, logger)
	}

	engine := mentatcontext.New(mentatcontext.Options{
		Root: root,
		Settings: mentatcontext.Settings{
			StructuralSummaries: cfg.Context.StructuralSummaries,
			AutoTokens:          cfg.Context.AutoTokens,
			UseSimilarity:       cfg.Context.UseSimilarity,
			UseLLMSelection:     cfg.Context.UseLLMSelection,
			DiffBaseline:        cfg.Context.DiffBaseline,
			MaxFileBytes:        cfg.Context.MaxFileBytes,
		},
		Catalog:  cat,
		Diff:     dctx,
		Renderer: renderer,
		Counter:  counter,
		Ranker:   ranker,
		Selector: sel,
		Mapper:   mapper,
		Bus:      bus,
		Logger:   logger,
	})

	invalid := engine.SetPaths(context.Background(),
		cfg.Context.IncludePaths, nil, cfg.Context.IgnorePaths)
	if len(invalid) > 0 {
		logger.Warn("ignoring invalid include paths", zap.Strings("specs", invalid))
	}

	return &session{engine: engine, bus: bus, renderer: renderer, counter: counter, close: cleanup}, nil
}

// printNotices forwards engine notices to stderr until done closes.
func printNotices(bus *broadcast.Bus, done <-chan struct{}) {
	sub := bus.Subscribe(mentatcontext.NoticeChannel)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if text, ok := ev.Message.(string); ok {
					fmt.Fprintln(os.Stderr, "notice:", text)
				}
			case <-done:
				return
			}
		}
	}()
}
