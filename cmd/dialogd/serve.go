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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dialogd/internal/config"
	"dialogd/internal/coordinator"
	"dialogd/internal/engine"
	"dialogd/internal/httpapi"
	"dialogd/internal/logging"
	"dialogd/internal/persist"
	"dialogd/internal/registry"
	"dialogd/pkg/types"
)

type serveFlags struct {
	addr        string
	model       string
	modelsDir   string
	modelID     string
	ctxSize     int
	batchSize   int
	threads     int
	gpuLayers   int
	store       string
	storePath   string
	corsOrigins string
	requestLog  string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load(cmd, func(c *config.Config) { f.apply(cmd, c) })
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, f.requestLog, log)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8080 (defaults DIALOGD_ADDR)")
	fl.StringVar(&f.model, "model", "", "Model file to load (defaults DIALOGD_MODEL)")
	fl.StringVar(&f.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	fl.StringVar(&f.modelID, "model-id", "", "Model file name inside --models-dir")
	fl.IntVar(&f.ctxSize, "ctx-size", 0, "Engine cache capacity in tokens")
	fl.IntVar(&f.batchSize, "batch-size", 0, "Maximum tokens per engine batch")
	fl.IntVar(&f.threads, "threads", 0, "Generation threads (0 = engine default)")
	fl.IntVar(&f.gpuLayers, "gpu-layers", 0, "Layers offloaded to the GPU")
	fl.StringVar(&f.store, "store", "", "Snapshot store: none|file|sqlite|dynamodb")
	fl.StringVar(&f.storePath, "store-path", "", "Snapshot file or SQLite database path")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated CORS origins; enables CORS when set")
	fl.StringVar(&f.requestLog, "request-log", "info", "Per-request log level: off|error|info|debug")
	return cmd
}

func (f *serveFlags) apply(cmd *cobra.Command, c *config.Config) {
	fl := cmd.Flags()
	set := func(name string, fn func()) {
		if fl.Changed(name) {
			fn()
		}
	}
	set("addr", func() { c.Addr = f.addr })
	set("model", func() { c.ModelPath = f.model })
	set("models-dir", func() { c.ModelsDir = f.modelsDir })
	set("model-id", func() { c.ModelID = f.modelID })
	set("ctx-size", func() { c.CtxSize = f.ctxSize })
	set("batch-size", func() { c.BatchSize = f.batchSize })
	set("threads", func() { c.Threads = f.threads })
	set("gpu-layers", func() { c.GPULayers = f.gpuLayers })
	set("store", func() { c.Store = c.Store.WithKind(f.store) })
	set("store-path", func() { c.Store.Path = f.storePath })
	set("cors-origins", func() {
		c.CORS.Origins = splitCSV(f.corsOrigins)
		c.CORS.Enabled = len(c.CORS.Origins) > 0
	})
}

func engineOptions(cfg config.Config, modelPath string) engine.Options {
	return engine.Options{
		ModelPath:   modelPath,
		ContextSize: cfg.CtxSize,
		BatchSize:   cfg.BatchSize,
		Threads:     cfg.Threads,
		GPULayers:   cfg.GPULayers,
		Seed:        cfg.Seed,
	}
}

func storeOptions(cfg config.Config) persist.Options {
	return persist.Options{
		Kind:  persist.Kind(cfg.Store.Kind),
		Path:  cfg.Store.Path,
		Table: cfg.Store.Table,
		Name:  cfg.Store.Name,
	}
}

// resolveModel scans the models directory unless an explicit path is set.
func resolveModel(cfg config.Config) (types.Model, []types.Model, error) {
	var models []types.Model
	if cfg.ModelPath == "" {
		var err error
		if models, err = registry.LoadDir(cfg.ModelsDir); err != nil {
			return types.Model{}, nil, fmt.Errorf("scan models: %w", err)
		}
	}
	m, err := registry.Resolve(cfg.ModelPath, cfg.ModelID, models)
	if err != nil {
		return types.Model{}, nil, err
	}
	if len(models) == 0 {
		models = []types.Model{m}
	}
	return m, models, nil
}

func serve(ctx context.Context, cfg config.Config, requestLog string, log zerolog.Logger) error {
	model, models, err := resolveModel(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.Open(engineOptions(cfg, model.Path))
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	sink, err := persist.Open(ctx, storeOptions(cfg))
	if err != nil {
		_ = eng.Close()
		return fmt.Errorf("open store: %w", err)
	}
	defer sink.Close()

	coord, err := coordinator.New(coordinator.Config{
		Engine:           eng,
		MaxQueueDepth:    cfg.MaxQueueDepth,
		MaxWait:          cfg.MaxWait(),
		FragmentBuffer:   cfg.FragmentBuffer,
		MaxConversations: cfg.MaxConversations,
		DrainTimeout:     cfg.DrainTimeout(),
		DefaultParams: coordinator.Params{
			Temperature:     cfg.Defaults.Temperature,
			TopK:            cfg.Defaults.TopK,
			TopP:            cfg.Defaults.TopP,
			MaxTokens:       cfg.Defaults.MaxTokens,
			Threads:         cfg.Threads,
			Seed:            cfg.Seed,
			CausalAttention: coordinator.Bool(true),
		},
		Logger:    log,
		Publisher: coordinator.LogPublisher{Logger: logging.Component(log, "events")},
		Sink:      sink,
	})
	if err != nil {
		_ = eng.Close()
		return err
	}
	if _, err := coord.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restore conversations failed; starting empty")
	}
	defaults := coord.Defaults()
	log.Info().
		Float32("temperature", defaults.Temperature).
		Int("top_k", defaults.TopK).
		Float32("top_p", defaults.TopP).
		Int("max_tokens", defaults.MaxTokens).
		Msg("generation defaults")

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(log)
	httpapi.SetRequestLogLevel(requestLog)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeoutSeconds(int64(cfg.GenerateTimeoutSeconds))
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, nil, nil)
	httpapi.SetModels(models, model.ID)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(coord),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("model", model.ID).Int("ctx_size", cfg.CtxSize).Msg("dialogd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return coord.Autosave(gctx, cfg.AutosaveInterval())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout()+5*time.Second)
		defer cancel()
		// drain sessions first so streaming handlers finish before Shutdown waits on them
		if err := coord.Close(sctx); err != nil {
			log.Warn().Err(err).Msg("coordinator close")
		}
		cancelBase()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
		if err := coord.Persist(sctx); err != nil {
			log.Warn().Err(err).Msg("final snapshot failed")
		}
		return nil
	})
	err = g.Wait()
	log.Info().Msg("dialogd stopped")
	return err
}
