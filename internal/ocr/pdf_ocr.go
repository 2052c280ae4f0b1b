package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/property-verifier/constants"
)

// extractPDF renders the leading pages (the first one is kept as PageImage)
// and prefers the embedded text layer, falling back to OCR of the renders
// when the layer is too thin to be a digital document.
func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.PDF, Language: e.cfg.TesseractLang}

	pages, cleanup, renderWarn, renderErr := e.renderPages(ctx, path)
	res.cleanup = cleanup
	res.Warnings = append(res.Warnings, renderWarn...)
	if renderErr == nil && len(pages) > 0 {
		res.PageImage = pages[0]
	}

	text, n, warn, err := e.pdfToText(ctx, path)
	res.Warnings = append(res.Warnings, warn...)
	if err == nil && len(strings.TrimSpace(text)) >= e.cfg.MinPDFTextChars {
		res.Text = Normalize(text)
		res.Pages = n
		res.Method = "pdf-text"
		res.Confidence = blendConfidence(0.95, heuristicConfidence(res.Text))
		return res, nil
	}
	if err != nil {
		res.Warnings = append(res.Warnings, "pdftotext: "+err.Error())
	}

	if renderErr != nil {
		return res, fmt.Errorf("render pdf: %w", renderErr)
	}

	var b strings.Builder
	var tsvConf float32
	for _, img := range pages {
		txt, w, err := e.recognize(ctx, img)
		res.Warnings = append(res.Warnings, w...)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
		if e.cfg.EnableTSVConfidence && tsvConf == 0 {
			if c, _, err := e.tesseractTSVConfidence(ctx, img); err == nil {
				tsvConf = c
			}
		}
	}
	if b.Len() == 0 {
		return res, errors.New("ocr produced no text")
	}
	res.Text = Normalize(b.String())
	res.Pages = len(pages)
	res.Method = "pdf-ocr"
	res.Confidence = blendConfidence(tsvConf, heuristicConfidence(res.Text))
	return res, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix -f 1 -l N <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext,
		"-layout", "-enc", "UTF-8", "-eol", "unix",
		"-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages),
		path, "-")
	if err != nil {
		return "", 0, nonEmpty(string(errb)), err
	}
	text = strings.TrimRight(string(out), "\f\n")
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}

// renderPages rasterizes pages 1..MaxPages to PNG in a temp dir.
func (e *Extractor) renderPages(ctx context.Context, path string) (pages []string, cleanup func(), warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "pv-page-*")
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup = func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png -f 1 -l N <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", strconv.Itoa(e.cfg.DPI), "-png",
		"-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages),
		path, prefix)
	if err != nil {
		return nil, cleanup, nonEmpty(string(errb)), err
	}

	// pdftoppm pads page numbers to the page count width: page-1.png, page-01.png, ...
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, cleanup, []string{"pdftoppm produced no images"}, errors.New("no pages rendered")
	}
	return matches, cleanup, nil, nil
}

func nonEmpty(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}
