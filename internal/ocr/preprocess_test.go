package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrayscaleConvertsColor(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			rgba.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	g := grayscale(rgba)
	require.Equal(t, image.Rect(0, 0, 4, 2), g.Bounds())
	assert.Equal(t, uint8(255), g.Pix[0])
}

func TestGrayscalePassesThroughGray(t *testing.T) {
	src := solidGray(4, 2, 100)
	assert.Same(t, src, grayscale(src))
}

func TestGrayscaleNormalizesSubimageOrigin(t *testing.T) {
	src := solidGray(10, 10, 77)
	sub := src.SubImage(image.Rect(2, 2, 8, 6)).(*image.Gray)
	g := grayscale(sub)
	require.Equal(t, image.Rect(0, 0, 6, 4), g.Bounds())
	assert.Equal(t, uint8(77), g.Pix[0])
}

func TestUpscaleIfSmallEnlargesTinyCrops(t *testing.T) {
	small := solidGray(30, 10, 128)
	up := upscaleIfSmall(small)
	assert.GreaterOrEqual(t, up.Bounds().Dx(), minOCRWidth)
	assert.GreaterOrEqual(t, up.Bounds().Dy(), minOCRHeight)
}

func TestUpscaleIfSmallCapsMagnification(t *testing.T) {
	tiny := solidGray(5, 2, 128)
	up := upscaleIfSmall(tiny)
	assert.Equal(t, 20, up.Bounds().Dx())
	assert.Equal(t, 8, up.Bounds().Dy())
}

func TestUpscaleIfSmallLeavesLargeCropsAlone(t *testing.T) {
	big := solidGray(200, 60, 128)
	assert.Same(t, big, upscaleIfSmall(big))
}

func TestApplyThreshold(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 1))
	g.Pix[0] = 50
	g.Pix[1] = 200

	bin := applyThreshold(g, 100)
	assert.Equal(t, uint8(0), bin.Pix[0])
	assert.Equal(t, uint8(255), bin.Pix[1])
}

func TestInvertGrayComplements(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 1))
	g.Pix[0] = 0
	g.Pix[1] = 255

	inv := invertGray(g)
	assert.Equal(t, uint8(255), inv.Pix[0])
	assert.Equal(t, uint8(0), inv.Pix[1])
}

func TestOtsuSeparatesBimodalImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range g.Pix {
		if i%2 == 0 {
			g.Pix[i] = 40
		} else {
			g.Pix[i] = 210
		}
	}
	level := otsuLevel(g)
	assert.GreaterOrEqual(t, level, uint8(40))
	assert.Less(t, level, uint8(210))

	bin := otsuThreshold(g)
	assert.Equal(t, uint8(0), bin.Pix[0])
	assert.Equal(t, uint8(255), bin.Pix[1])
}

func TestAdaptiveThresholdUniformImageIsWhite(t *testing.T) {
	// Every pixel equals its neighborhood mean, so with the bias applied
	// all pixels end up above the local threshold.
	for _, method := range []adaptiveMethod{adaptiveMean, adaptiveGaussian} {
		bin := adaptiveThreshold(solidGray(20, 20, 128), method)
		for _, v := range bin.Pix {
			require.Equal(t, uint8(255), v)
		}
	}
}

func TestAdaptiveThresholdKeepsLocalContrast(t *testing.T) {
	// Dark glyph stroke on a bright background must binarize to black on
	// white regardless of the absolute brightness.
	g := solidGray(30, 30, 200)
	for y := 10; y < 20; y++ {
		g.Pix[y*g.Stride+15] = 20
	}
	bin := adaptiveThreshold(g, adaptiveGaussian)
	assert.Equal(t, uint8(0), bin.Pix[15*bin.Stride+15])
	assert.Equal(t, uint8(255), bin.Pix[2*bin.Stride+2])
}

func TestBinarizationVariantsCountAndOrder(t *testing.T) {
	variants := binarizationVariants(solidGray(64, 24, 128))
	require.Len(t, variants, 12)
	for _, v := range variants {
		assert.Equal(t, image.Rect(0, 0, 64, 24), v.Bounds())
	}
	// Fixed level 100 and its inverse sit next to each other and must be
	// complementary on a uniform mid-gray input.
	assert.Equal(t, uint8(255), variants[6].Pix[0])
	assert.Equal(t, uint8(0), variants[7].Pix[0])
}

func TestBinarizationVariantPairsAreComplementary(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 8, 4))
	for i := range g.Pix {
		g.Pix[i] = uint8((i * 37) % 256)
	}
	variants := binarizationVariants(g)
	require.Len(t, variants, 12)
	for _, pair := range [][2]int{{0, 1}, {4, 5}, {6, 7}, {8, 9}, {10, 11}} {
		base, inv := variants[pair[0]], variants[pair[1]]
		for i := range base.Pix {
			require.Equal(t, uint8(255), base.Pix[i]+inv.Pix[i])
		}
	}
}

func TestPreprocessSingleProducesBinaryImage(t *testing.T) {
	out := preprocessSingle(plateCrop())
	require.NotNil(t, out)
	for _, v := range out.Pix {
		assert.Contains(t, []uint8{0, 255}, v)
	}
}
