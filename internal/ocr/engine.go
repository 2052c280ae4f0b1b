package ocr

import (
	"context"
	"errors"
)

// Engine recognizes text in one image file in-process.
type Engine interface {
	Recognize(ctx context.Context, imagePath, lang string) (string, error)
	Close() error
}

// ErrEngineNotBuilt is returned by NewGosseractEngine when the binary was
// built without the gosseract tag.
var ErrEngineNotBuilt = errors.New("gosseract engine not compiled in; rebuild with -tags gosseract")
