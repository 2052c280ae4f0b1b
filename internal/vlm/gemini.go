package vlm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey      string
	Model       string // default "gemini-2.0-flash"
	Timeout     time.Duration
	ChunkWords  int
	Parallelism int     // concurrent chunk calls, default 2
	MaxImageMB  int     // larger page images are not attached, default 8
	Temperature float32 // default 0
}

// contentGenerator is the subset of *genai.Models we use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements Model on the Gemini API.
type Gemini struct {
	cfg    GeminiConfig
	models contentGenerator
	logger *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(cfg, client.Models, logger), nil
}

func newGemini(cfg GeminiConfig, models contentGenerator, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ChunkWords <= 0 {
		cfg.ChunkWords = DefaultChunkWords
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.MaxImageMB <= 0 {
		cfg.MaxImageMB = 8
	}
	return &Gemini{cfg: cfg, models: models, logger: logger}
}

func (g *Gemini) Ready() bool { return g != nil && g.models != nil }

// chunkReply is the JSON we ask the model for.
type chunkReply struct {
	Confidence       float64 `json:"confidence"`
	SignaturePresent *bool   `json:"signature_present"`
	StampPresent     *bool   `json:"stamp_present"`
}

type chunkResult struct {
	reply  chunkReply
	tokens int
	err    error
}

// Infer sends the page image with each text window and averages the model's
// confidence across the windows that answered.
func (g *Gemini) Infer(ctx context.Context, req Request) StructuredData {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	image, warn := g.loadImage(req.ImagePath)
	if warn != "" {
		g.logger.Warn("vlm.image.skipped", "path", req.ImagePath, "reason", warn)
	}
	chunks := ChunkWords(req.Text, g.cfg.ChunkWords)
	if len(chunks) == 0 {
		if image == nil {
			return StructuredData{Error: "no text or image to analyze"}
		}
		chunks = []string{""}
	}

	results := make([]chunkResult, len(chunks))
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Parallelism)
	for i, chunk := range chunks {
		eg.Go(func() error {
			results[i] = g.inferChunk(ctx, req.DocumentType.String(), chunk, image)
			return nil
		})
	}
	_ = eg.Wait()

	out := aggregate(results)
	g.logger.Info("vlm.infer",
		"model", g.cfg.Model,
		"chunks", len(chunks),
		"chunks_processed", out.ChunksProcessed,
		"tokens", out.TokenPredictions,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func aggregate(results []chunkResult) StructuredData {
	var out StructuredData
	var sum float64
	var errs []string
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err.Error())
			continue
		}
		out.ChunksProcessed++
		out.TokenPredictions += r.tokens
		sum += clamp01(r.reply.Confidence)
		out.SignaturePresent = orFlag(out.SignaturePresent, r.reply.SignaturePresent)
		out.StampPresent = orFlag(out.StampPresent, r.reply.StampPresent)
	}
	if out.ChunksProcessed > 0 {
		out.ConfidenceScore = sum / float64(out.ChunksProcessed)
	} else if len(errs) > 0 {
		out.Error = errs[0]
	}
	return out
}

type pageImage struct {
	data []byte
	mime string
}

func (g *Gemini) loadImage(path string) (*pageImage, string) {
	if path == "" {
		return nil, ""
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err.Error()
	}
	if st.Size() > int64(g.cfg.MaxImageMB)<<20 {
		return nil, "image exceeds size limit"
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err.Error()
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "not an image: " + mt.String()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err.Error()
	}
	return &pageImage{data: data, mime: mt.String()}, ""
}

func (g *Gemini) inferChunk(ctx context.Context, docType, chunk string, image *pageImage) chunkResult {
	parts := make([]*genai.Part, 0, 2)
	if image != nil {
		parts = append(parts, genai.NewPartFromBytes(image.data, image.mime))
	}
	parts = append(parts, genai.NewPartFromText(chunkPrompt(docType, chunk)))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := g.cfg.Temperature
	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temp,
	})
	if err != nil {
		g.logger.Error("vlm.generate_error", "model", g.cfg.Model, "error", err)
		return chunkResult{err: fmt.Errorf("generate content: %w", err)}
	}
	text, err := responseText(resp)
	if err != nil {
		return chunkResult{err: err}
	}
	var reply chunkReply
	if err := json.Unmarshal([]byte(stripFences(text)), &reply); err != nil {
		g.logger.Warn("vlm.decode_error", "error", err, "raw", truncate(text, 512))
		return chunkResult{err: fmt.Errorf("decode reply: %w", err)}
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return chunkResult{reply: reply, tokens: tokens}
}

func chunkPrompt(docType, chunk string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a scanned Indian property document of type \"")
	b.WriteString(docType)
	b.WriteString("\". Look at the page image (if attached) and the OCR text below.\n")
	b.WriteString(`Answer with JSON only: {"confidence": <0..1, how legible and complete this portion is>, `)
	b.WriteString(`"signature_present": <true if a handwritten signature is visible>, `)
	b.WriteString(`"stamp_present": <true if an official stamp or stamp paper is visible>}` + "\n")
	if chunk != "" {
		b.WriteString("\nOCR text:\n")
		b.WriteString(chunk)
	}
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		return "", errors.New("no parts in candidate content")
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", errors.New("no text in response")
	}
	return b.String(), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func orFlag(acc, v *bool) *bool {
	if v == nil {
		return acc
	}
	if acc == nil {
		b := *v
		return &b
	}
	b := *acc || *v
	return &b
}

func clamp01(f float64) float64 {
	return min(1, max(0, f))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
