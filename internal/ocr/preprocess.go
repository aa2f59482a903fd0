package ocr

import (
	"image"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/segment"
	xdraw "golang.org/x/image/draw"
)

// Minimum usable crop size for OCR; smaller regions are upscaled.
const (
	minOCRWidth   = 60
	minOCRHeight  = 20
	maxUpscale    = 4.0
	adaptiveBlock = 11
	adaptiveBias  = 2
)

// fixedThresholdLevels are the manual binarization levels tried by the
// multi-attempt path, each with its inverse.
var fixedThresholdLevels = []uint8{80, 100, 120, 140}

// grayscale converts any image to 8-bit single channel.
func grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// upscaleIfSmall enlarges a crop below the minimum OCR size using cubic
// (Catmull-Rom) interpolation, capped at 4× magnification.
func upscaleIfSmall(g *image.Gray) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if w >= minOCRWidth && h >= minOCRHeight {
		return g
	}
	scale := math.Max(float64(minOCRWidth)/float64(w), float64(minOCRHeight)/float64(h))
	if scale > maxUpscale {
		scale = maxUpscale
	}
	dst := image.NewGray(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), g, g.Bounds(), xdraw.Over, nil)
	return dst
}

// smooth applies a light Gaussian blur to knock down sensor noise before
// binarization.
func smooth(g *image.Gray) *image.Gray {
	return grayscale(blur.Gaussian(g, 1.2))
}

// applyThreshold binarizes at a given level, mapping pixels strictly above
// it to white. It exists alongside segment.Threshold because Otsu's chosen
// level lands exactly on a histogram class and needs the strict comparison.
func applyThreshold(g *image.Gray, level uint8) *image.Gray {
	b := g.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if g.Pix[y*g.Stride+x] > level {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// invertGray returns the exact complement of a binarized image, giving dark
// glyphs on light plates and light glyphs on dark plates each a variant.
func invertGray(g *image.Gray) *image.Gray {
	b := g.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = 255 - g.Pix[y*g.Stride+x]
		}
	}
	return dst
}

// otsuLevel finds the global threshold maximizing between-class variance.
func otsuLevel(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	total := 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			hist[g.Pix[y*g.Stride+x]]++
			total++
		}
	}
	if total == 0 {
		return 127
	}

	var sum float64
	for v, n := range hist {
		sum += float64(v) * float64(n)
	}

	var sumBg, weightBg float64
	var best float64
	var level uint8
	for v := 0; v < 256; v++ {
		weightBg += float64(hist[v])
		if weightBg == 0 {
			continue
		}
		weightFg := float64(total) - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(v) * float64(hist[v])
		meanBg := sumBg / weightBg
		meanFg := (sum - sumBg) / weightFg
		variance := weightBg * weightFg * (meanBg - meanFg) * (meanBg - meanFg)
		if variance > best {
			best = variance
			level = uint8(v)
		}
	}
	return level
}

// otsuThreshold binarizes at the global-optimal level.
func otsuThreshold(g *image.Gray) *image.Gray {
	return applyThreshold(g, otsuLevel(g))
}

// adaptiveMethod selects the local weighting used by adaptiveThreshold.
type adaptiveMethod int

const (
	adaptiveMean adaptiveMethod = iota
	adaptiveGaussian
)

// adaptiveThreshold binarizes each pixel against a weighted mean of its
// block neighborhood minus a small bias, handling uneven plate lighting
// that defeats any global level.
func adaptiveThreshold(g *image.Gray, method adaptiveMethod) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	radius := adaptiveBlock / 2
	weights := blockWeights(method, radius)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc, wsum float64
			for dy := -radius; dy <= radius; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				for dx := -radius; dx <= radius; dx++ {
					xx := clampInt(x+dx, 0, w-1)
					wt := weights[(dy+radius)*adaptiveBlock+(dx+radius)]
					acc += wt * float64(g.Pix[yy*g.Stride+xx])
					wsum += wt
				}
			}
			local := acc / wsum
			if float64(g.Pix[y*g.Stride+x]) > local-adaptiveBias {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// blockWeights returns the flattened block kernel: uniform for the mean
// method, a 2D Gaussian for the Gaussian method.
func blockWeights(method adaptiveMethod, radius int) []float64 {
	size := 2*radius + 1
	weights := make([]float64, size*size)
	if method == adaptiveMean {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			weights[(dy+radius)*size+(dx+radius)] = math.Exp(-d2 / (2 * sigma * sigma))
		}
	}
	return weights
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// preprocessSingle is the single-attempt preparation chain: grayscale,
// upscale small crops, smooth, then adaptive Gaussian binarization.
func preprocessSingle(img image.Image) *image.Gray {
	g := smooth(upscaleIfSmall(grayscale(img)))
	return adaptiveThreshold(g, adaptiveGaussian)
}

// binarizationVariants produces the candidate binarizations tried by the
// multi-attempt path, in fixed order: Otsu and its inverse, adaptive mean,
// adaptive Gaussian, then each fixed level with its inverse.
func binarizationVariants(g *image.Gray) []*image.Gray {
	variants := make([]*image.Gray, 0, 4+2*len(fixedThresholdLevels))
	otsu := otsuThreshold(g)
	variants = append(variants,
		otsu,
		invertGray(otsu),
		adaptiveThreshold(g, adaptiveMean),
		adaptiveThreshold(g, adaptiveGaussian),
	)
	for _, level := range fixedThresholdLevels {
		fixed := segment.Threshold(g, level)
		variants = append(variants, fixed, invertGray(fixed))
	}
	return variants
}
