package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/property-verifier/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for PDFs, default 300
	MaxPages      int    // PDF pages read, default 1 (first page)

	// MinPDFTextChars is the embedded-text length below which a PDF is
	// treated as scanned and OCRed instead.
	MinPDFTextChars int

	TessdataDir         string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32

	// PageImage is an image of the first page for layout and vision analysis.
	// For PDFs it is a temporary render removed by Cleanup.
	PageImage string
	cleanup   func()
}

// Cleanup releases temporary artifacts. Safe to call more than once.
func (r *ExtractionResult) Cleanup() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

type Extractor struct {
	cfg    Config
	runner Runner
	engine Engine
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the external command runner (tests).
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithEngine routes image recognition through an in-process engine instead of the tesseract CLI.
func WithEngine(en Engine) Option {
	return func(e *Extractor) { e.engine = en }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.MinPDFTextChars <= 0 {
		cfg.MinPDFTextChars = 40
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("ocr.start", "path", path, "ext", ext)

	var (
		res ExtractionResult
		err error
	)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.IMAGE:
		res, err = e.extractImage(ctx, path)
		res.PageImage = path
	default:
		e.logger.Error("ocr.unsupported_extension", "extension", ext)
		return ExtractionResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
	res.Duration = time.Since(start)
	if err != nil {
		res.Cleanup()
		res.PageImage = ""
		return res, err
	}
	e.logger.Info("ocr.ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Close releases the in-process engine, if any.
func (e *Extractor) Close() error {
	if e.engine != nil {
		return e.engine.Close()
	}
	return nil
}
