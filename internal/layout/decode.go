package layout

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// AnalyzeFile decodes an image file and analyzes it. Decode failures are
// reported in Features.Error as well as returned.
func (a *Analyzer) AnalyzeFile(path string) (Features, error) {
	f, err := os.Open(path)
	if err != nil {
		return Features{Error: err.Error()}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Features{Error: err.Error()}, fmt.Errorf("decode image: %w", err)
	}
	return a.Analyze(img), nil
}
