package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Analyzer turns extracted document data into an Analysis with one model call.
type Analyzer struct {
	reasoner        Reasoner
	prompts         *PromptSet
	logger          *slog.Logger
	temperature     *float32
	fallbackOnError bool
}

type AnalyzerOption func(*Analyzer)

// WithTemperature overrides the temperature from the prompt files.
func WithTemperature(t float32) AnalyzerOption {
	return func(a *Analyzer) { a.temperature = &t }
}

// WithFallbackOnError answers with the canned analysis instead of an error
// when the model cannot be reached.
func WithFallbackOnError(enabled bool) AnalyzerOption {
	return func(a *Analyzer) { a.fallbackOnError = enabled }
}

func NewAnalyzer(reasoner Reasoner, prompts *PromptSet, logger *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{reasoner: reasoner, prompts: prompts, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) Ready() bool { return a.reasoner != nil && a.reasoner.Ready() }

// Analyze renders the prompt, queries the model and parses its reply. The
// bool result reports whether the fallback analysis was used.
func (a *Analyzer) Analyze(ctx context.Context, data ExtractedData) (Analysis, bool, error) {
	start := time.Now()
	prompt, err := a.prompts.Render(data)
	if err != nil {
		return Analysis{}, false, fmt.Errorf("build prompt: %w", err)
	}

	req := GenerateRequest{Prompt: prompt}
	if cfg, ok := a.prompts.Config(data.DocumentType); ok {
		req.Model = cfg.Model
		req.Temperature = cfg.Temperature
	}
	if a.temperature != nil {
		req.Temperature = a.temperature
	}

	reply, err := a.reasoner.Generate(ctx, req)
	if err != nil {
		if !a.fallbackOnError || ctx.Err() != nil {
			return Analysis{}, false, fmt.Errorf("LLM analysis error: %w", err)
		}
		a.logger.Warn("llm.analyze.fallback", "reason", "generate_failed", "document_type", data.DocumentType, "error", err)
		return Fallback(data), true, nil
	}

	parsed := ParseResponse(reply)
	if parsed.Empty() {
		a.logger.Warn("llm.analyze.fallback", "reason", "unparseable_reply", "document_type", data.DocumentType, "reply_chars", len(reply))
		return Fallback(data), true, nil
	}

	analysis := Analysis{
		Summary:           BuildSummary(data),
		Benefits:          parsed.Benefits,
		Risks:             parsed.Risks,
		CompletenessScore: parsed.CompletenessScore,
		ConfidenceScore:   parsed.ConfidenceScore,
	}
	if err := ValidateAnalysis(data.DocumentType, analysis); err != nil {
		return Analysis{}, false, fmt.Errorf("analysis failed validation: %w", err)
	}

	a.logger.Info("llm.analyze.ok",
		"document_type", data.DocumentType,
		"benefits", len(analysis.Benefits),
		"risks", len(analysis.Risks),
		"completeness", analysis.CompletenessScore,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return analysis, false, nil
}
