// Package layout finds visual cues on a rendered page: ink signatures and
// coloured stamps.
package layout

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Features are the layout cues reported for a page.
type Features struct {
	SignatureDetected bool   `json:"signature_detected"`
	StampDetected     bool   `json:"stamp_detected"`
	ImageDimensions   [2]int `json:"image_dimensions"` // width, height of the source image
	Error             string `json:"error,omitempty"`
}

// Config tunes the heuristics. Areas and counts are in source-image pixels.
type Config struct {
	MaxDim             int     // images are downscaled so the longest side is at most MaxDim
	MinSignatureArea   float64 // ink component area above which a stroke counts as a signature
	SignatureRegion    float64 // fraction of page height, from the bottom, searched for signatures
	MaxSignatureFill   float64 // strokes are sparse; components denser than this are print or rules
	DarkLuma           uint8   // luminance below which a pixel is ink
	MinStampPixels     float64
	MinStampSaturation float64
	MinStampValue      float64
}

func DefaultConfig() Config {
	return Config{
		MaxDim:             1000,
		MinSignatureArea:   500,
		SignatureRegion:    0.6,
		MaxSignatureFill:   0.35,
		DarkLuma:           110,
		MinStampPixels:     1000,
		MinStampSaturation: 50.0 / 255.0,
		MinStampValue:      50.0 / 255.0,
	}
}

type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MaxDim <= 0 {
		cfg.MaxDim = def.MaxDim
	}
	if cfg.MinSignatureArea <= 0 {
		cfg.MinSignatureArea = def.MinSignatureArea
	}
	if cfg.SignatureRegion <= 0 || cfg.SignatureRegion > 1 {
		cfg.SignatureRegion = def.SignatureRegion
	}
	if cfg.MaxSignatureFill <= 0 {
		cfg.MaxSignatureFill = def.MaxSignatureFill
	}
	if cfg.DarkLuma == 0 {
		cfg.DarkLuma = def.DarkLuma
	}
	if cfg.MinStampPixels <= 0 {
		cfg.MinStampPixels = def.MinStampPixels
	}
	if cfg.MinStampSaturation <= 0 {
		cfg.MinStampSaturation = def.MinStampSaturation
	}
	if cfg.MinStampValue <= 0 {
		cfg.MinStampValue = def.MinStampValue
	}
	return &Analyzer{cfg: cfg}
}

// Analyze computes Features for img.
func (a *Analyzer) Analyze(img image.Image) Features {
	b := img.Bounds()
	f := Features{ImageDimensions: [2]int{b.Dx(), b.Dy()}}
	if b.Empty() {
		return f
	}
	small, scale := downscale(img, a.cfg.MaxDim)
	areaScale := scale * scale

	f.StampDetected = float64(a.countStampPixels(small))*areaScale > a.cfg.MinStampPixels
	f.SignatureDetected = a.hasSignature(small, areaScale)
	return f
}

// downscale returns an RGBA copy whose longest side is at most maxDim and
// the linear factor from the copy back to the source.
func downscale(src image.Image, maxDim int) (*image.RGBA, float64) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if longest := max(w, h); longest > maxDim {
		scale = float64(longest) / float64(maxDim)
		w = max(1, int(math.Round(float64(w)/scale)))
		h = max(1, int(math.Round(float64(h)/scale)))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if scale == 1.0 {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return dst, scale
}

func (a *Analyzer) countStampPixels(img *image.RGBA) int {
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			h, s, v := hsv(c)
			if s < a.cfg.MinStampSaturation || v < a.cfg.MinStampValue {
				continue
			}
			if isRed(h) || isBlue(h) {
				n++
			}
		}
	}
	return n
}

func isRed(h float64) bool  { return h <= 20 || h >= 340 }
func isBlue(h float64) bool { return h >= 200 && h <= 260 }

// hsv converts to hue in degrees [0,360) and saturation/value in [0,1].
func hsv(c color.RGBA) (h, s, v float64) {
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	v = hi
	d := hi - lo
	if hi == 0 || d == 0 {
		return 0, 0, v
	}
	s = d / hi
	switch hi {
	case r:
		h = 60 * math.Mod((g-b)/d, 6)
	case g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// hasSignature labels 8-connected ink components in the lower part of the
// page and looks for one shaped like handwriting: large enough, wider than
// tall, and sparse within its bounding box.
func (a *Analyzer) hasSignature(img *image.RGBA, areaScale float64) bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	top := int(float64(h) * (1 - a.cfg.SignatureRegion))

	ink := make([]bool, w*h)
	for y := top; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			if luma(c) < a.cfg.DarkLuma {
				ink[y*w+x] = true
			}
		}
	}

	seen := make([]bool, w*h)
	stack := make([]int, 0, 256)
	for start := top * w; start < len(ink); start++ {
		if !ink[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		area := 0
		minX, minY, maxX, maxY := w, h, -1, -1
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			px, py := p%w, p/w
			minX, maxX = min(minX, px), max(maxX, px)
			minY, maxY = min(minY, py), max(maxY, py)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < top || nx >= w || ny >= h {
						continue
					}
					q := ny*w + nx
					if ink[q] && !seen[q] {
						seen[q] = true
						stack = append(stack, q)
					}
				}
			}
		}

		if float64(area)*areaScale <= a.cfg.MinSignatureArea {
			continue
		}
		bw, bh := maxX-minX+1, maxY-minY+1
		fill := float64(area) / float64(bw*bh)
		if bw*2 < bh*3 || fill > a.cfg.MaxSignatureFill {
			continue
		}
		if bw < w/30 || bh < max(2, h/125) {
			continue
		}
		return true
	}
	return false
}

func luma(c color.RGBA) uint8 {
	return uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000)
}
