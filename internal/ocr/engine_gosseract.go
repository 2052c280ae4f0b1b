//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// gosseractEngine wraps a single Tesseract API handle. The handle is not
// safe for concurrent use, so calls are serialized.
type gosseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
	lang   string
}

// NewGosseractEngine links Tesseract through cgo. tessdataDir may be empty.
func NewGosseractEngine(tessdataDir string) (Engine, error) {
	c := gosseract.NewClient()
	if tessdataDir != "" {
		if err := c.SetTessdataPrefix(tessdataDir); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	return &gosseractEngine{client: c}, nil
}

func (g *gosseractEngine) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if lang != "" && lang != g.lang {
		if err := g.client.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
		g.lang = lang
	}
	if err := g.client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := g.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

func (g *gosseractEngine) Close() error {
	return g.client.Close()
}
