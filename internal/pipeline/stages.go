package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/property-verifier/internal/fields"
	"github.com/joseph-ayodele/property-verifier/internal/layout"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
	"github.com/joseph-ayodele/property-verifier/internal/ocr"
	"github.com/joseph-ayodele/property-verifier/internal/vlm"
)

// TextExtractor is satisfied by *ocr.Extractor.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (ocr.ExtractionResult, error)
}

// LayoutAnalyzer is satisfied by *layout.Analyzer.
type LayoutAnalyzer interface {
	AnalyzeFile(path string) (layout.Features, error)
}

// DocumentAnalyzer is satisfied by *llm.Analyzer.
type DocumentAnalyzer interface {
	Ready() bool
	Analyze(ctx context.Context, data llm.ExtractedData) (llm.Analysis, bool, error)
}

// perceive runs the layout analyzer and the vision model side by side over
// the OCR page image. Neither can fail the document; problems are recorded
// in the returned values.
func (p *Processor) perceive(ctx context.Context, doc Document, res ocr.ExtractionResult) (layout.Features, vlm.StructuredData) {
	var (
		features   layout.Features
		structured vlm.StructuredData
	)
	start := time.Now()

	// A plain group: a layout failure must not cancel the vision model.
	var g errgroup.Group
	g.Go(func() error {
		if res.PageImage == "" {
			features = layout.Features{Error: "no page image available"}
			return nil
		}
		f, err := p.layout.AnalyzeFile(res.PageImage)
		features = f
		return err
	})
	g.Go(func() error {
		structured = p.vlm.Infer(ctx, vlm.Request{
			ImagePath:    res.PageImage,
			Text:         res.Text,
			DocumentType: doc.DocumentType,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		p.logger.Warn("pipeline.layout.failed", "document", doc.Filename, "error", err)
		if features.Error == "" {
			features.Error = err.Error()
		}
	}

	p.logger.Debug("pipeline.perceive.ok",
		"document", doc.Filename,
		"signature", features.SignatureDetected,
		"stamp", features.StampDetected,
		"vlm_chunks", structured.ChunksProcessed,
		"vlm_error", structured.Error,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return features, structured
}

// extract runs every stage before the model call and assembles its input.
func (p *Processor) extract(ctx context.Context, doc Document) (llm.ExtractedData, ocr.ExtractionResult, error) {
	res, err := p.ocr.Extract(ctx, doc.Path)
	if err != nil {
		return llm.ExtractedData{}, res, err
	}
	defer res.Cleanup()

	p.logger.Info("pipeline.ocr.ok",
		"document", doc.Filename,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"confidence", res.Confidence,
	)

	features, structured := p.perceive(ctx, doc, res)
	data := llm.ExtractedData{
		DocumentType: doc.DocumentType,
		RawText:      res.Text,
		Layout:       features,
		Structured:   structured,
		Fields:       fields.Extract(res.Text, doc.DocumentType),
	}
	p.logger.Debug("pipeline.fields.ok", "document", doc.Filename, "fields", len(data.Fields))
	return data, res, nil
}
