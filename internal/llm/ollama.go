package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2:3b"
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Ollama talks to a local Ollama daemon over its HTTP API.
type Ollama struct {
	cfg    OllamaConfig
	client *http.Client
	logger *slog.Logger
	ready  atomic.Bool
}

func NewOllama(cfg OllamaConfig, client *http.Client, logger *slog.Logger) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{cfg: cfg, client: client, logger: logger}
}

// Initialize checks /api/tags. A failed check leaves the client usable but
// reported as not ready.
func (o *Ollama) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, _, err := GetJSON(ctx, o.client, o.cfg.BaseURL+"/api/tags", o.logger)
	if err != nil {
		o.ready.Store(false)
		o.logger.Warn("llm.ollama.unavailable", "url", o.cfg.BaseURL, "error", err)
		return fmt.Errorf("ollama not reachable at %s: %w", o.cfg.BaseURL, err)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(raw, &tags); err == nil {
		found := false
		for _, m := range tags.Models {
			if m.Name == o.cfg.Model {
				found = true
				break
			}
		}
		if !found {
			o.logger.Warn("llm.ollama.model_not_pulled", "model", o.cfg.Model, "available", len(tags.Models))
		}
	}

	o.ready.Store(true)
	o.logger.Info("llm.ollama.ready", "url", o.cfg.BaseURL, "model", o.cfg.Model)
	return nil
}

func (o *Ollama) Ready() bool { return o.ready.Load() }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate runs one non-streaming completion and returns the reply text.
func (o *Ollama) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}
	body := generateRequest{Model: model, Prompt: req.Prompt}
	if req.Temperature != nil {
		body.Options = map[string]any{"temperature": *req.Temperature}
	}

	start := time.Now()
	raw, status, err := SendJSON(ctx, o.client, o.cfg.BaseURL+"/api/generate", body, nil, o.logger)
	if err != nil {
		if msg := ollamaError(raw); msg != "" {
			return "", fmt.Errorf("ollama generate (status %d): %s", status, msg)
		}
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New("ollama: " + out.Error)
	}

	o.logger.Info("llm.ollama.generate_ok",
		"model", model,
		"prompt_tokens", out.PromptEvalCount,
		"completion_tokens", out.EvalCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Response, nil
}

func ollamaError(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil {
		return e.Error
	}
	return ""
}
