//go:build !gosseract

package ocr

// NewGosseractEngine is unavailable without the gosseract build tag; the
// tesseract CLI path is used instead.
func NewGosseractEngine(string) (Engine, error) {
	return nil, ErrEngineNotBuilt
}
