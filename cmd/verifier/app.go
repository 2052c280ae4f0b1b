package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/property-verifier/internal/common"
	"github.com/joseph-ayodele/property-verifier/internal/layout"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
	"github.com/joseph-ayodele/property-verifier/internal/ocr"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/vlm"
)

// app holds the wired pipeline and the resources it owns.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
	repo   repository.AnalysisRepository // nil when DB_DRIVER=none
	ocr    *ocr.Extractor
	proc   *pipeline.Processor
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	repo, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open analysis history: %w", err)
	}
	a.repo = repo

	a.ocr, err = newOCR(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var model vlm.Model = vlm.Disabled{}
	if cfg.VLM.APIKey != "" {
		g, err := vlm.NewGemini(ctx, vlm.GeminiConfig{
			APIKey:  cfg.VLM.APIKey,
			Model:   cfg.VLM.Model,
			Timeout: cfg.VLM.Timeout,
		}, logger)
		if err != nil {
			logger.Warn("vision model unavailable", "error", err)
		} else {
			model = g
		}
	} else {
		logger.Info("vision model disabled: GEMINI_API_KEY not set")
	}

	prompts, err := loadPrompts(cfg.LLM.PromptsDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	ollama := llm.NewOllama(llm.OllamaConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, nil, logger)
	if err := ollama.Initialize(ctx); err != nil {
		logger.Warn("continuing without llm readiness; requests will still try ollama", "error", err)
	}
	analyzer := llm.NewAnalyzer(ollama, prompts, logger,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithFallbackOnError(cfg.LLM.FallbackOnError),
	)

	opts := []pipeline.Option{pipeline.WithCacheSize(cfg.Pipeline.CacheSize)}
	if repo != nil {
		opts = append(opts, pipeline.WithRepository(repo))
	}
	a.proc, err = pipeline.NewProcessor(logger, a.ocr, layout.NewAnalyzer(layout.DefaultConfig()), model, analyzer, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newOCR(cfg *common.Config, logger *slog.Logger) (*ocr.Extractor, error) {
	var opts []ocr.Option
	if cfg.OCR.Engine == "gosseract" {
		engine, err := ocr.NewGosseractEngine(cfg.OCR.TessdataDir)
		if err != nil {
			return nil, fmt.Errorf("ocr engine: %w", err)
		}
		opts = append(opts, ocr.WithEngine(engine))
	}
	return ocr.NewExtractor(ocr.Config{
		TesseractLang:       cfg.OCR.TesseractLang,
		TessdataDir:         cfg.OCR.TessdataDir,
		DPI:                 cfg.OCR.DPI,
		EnableTSVConfidence: true,
	}, logger, opts...), nil
}

func loadPrompts(dir string) (*llm.PromptSet, error) {
	if dir == "" {
		return llm.DefaultPrompts()
	}
	p, err := llm.LoadPrompts(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
	}
	return p, nil
}

func (a *app) Close() {
	var errs []error
	if a.ocr != nil {
		errs = append(errs, a.ocr.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown cleanup failed", "error", err)
	}
}
