package squeeze

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJPEGQualityMapping(t *testing.T) {
	assert.Equal(t, 1, jpegQuality(0))
	assert.Equal(t, 1, jpegQuality(MinQuality))
	assert.Equal(t, 50, jpegQuality(0.5))
	assert.Equal(t, 85, jpegQuality(0.85))
	assert.Equal(t, 100, jpegQuality(MaxQuality))
}

func TestWebPQualityMapping(t *testing.T) {
	assert.Equal(t, float32(0), webpQuality(0))
	assert.InDelta(t, 42.0, webpQuality(0.42), 1e-4)
	assert.Equal(t, float32(100), webpQuality(1))
}

func TestJPEGSizeGrowsWithQuality(t *testing.T) {
	img := makeNoise(120, 90, 3)
	enc := StdEncoder{}

	prev := 0
	for _, q := range []float64{0.05, 0.2, 0.4, 0.6, 0.8, 0.95} {
		data, err := enc.Encode(ctx(), img, JPEG, q)
		require.NoError(t, err)
		assert.Greater(t, len(data), prev, "quality %.2f", q)
		prev = len(data)
	}
}

func TestStdEncoderJPEGDecodes(t *testing.T) {
	r := mustRaster(t, makeGradient(64, 48))
	data, err := StdEncoder{}.Encode(ctx(), r, JPEG, 0.8)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestStdEncoderPNGIgnoresQuality(t *testing.T) {
	img := makeGradient(40, 40)
	enc := StdEncoder{}

	lo, err := enc.Encode(ctx(), img, PNG, 0.1)
	require.NoError(t, err)
	hi, err := enc.Encode(ctx(), img, PNG, 0.9)
	require.NoError(t, err)
	assert.Equal(t, lo, hi)

	dec, err := png.Decode(bytes.NewReader(lo))
	require.NoError(t, err)
	assert.Equal(t, 40, dec.Bounds().Dx())
}

func TestStdEncoderWebP(t *testing.T) {
	if !Supported(WebP) {
		t.Skip("WebP encoder unavailable")
	}

	img := makeSolid(32, 32, color.NRGBA{10, 120, 200, 128})
	data, err := StdEncoder{}.Encode(ctx(), img, WebP, 0.75)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestStdEncoderRejects(t *testing.T) {
	img := makeGradient(8, 8)
	enc := StdEncoder{}

	for _, q := range []float64{-0.1, 1.01} {
		_, err := enc.Encode(ctx(), img, JPEG, q)
		assert.True(t, errors.Is(err, ErrInvalidQuality), "%v", q)
	}

	_, err := enc.Encode(ctx(), img, Format(9), 0.5)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	cancelled, cancel := context.WithCancel(ctx())
	cancel()
	_, err = enc.Encode(cancelled, img, JPEG, 0.5)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSupportedConcurrentCallers(t *testing.T) {
	var wg sync.WaitGroup
	got := make([][3]bool, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = [3]bool{Supported(JPEG), Supported(WebP), Supported(PNG)}
		}(i)
	}
	wg.Wait()

	for i := range got {
		assert.Equal(t, got[0], got[i])
	}
	assert.True(t, got[0][0], "JPEG")
	assert.True(t, got[0][2], "PNG")
	assert.False(t, Supported(Format(7)))
}

func TestProbeFormats(t *testing.T) {
	onlyJPEG := EncoderFunc(func(_ context.Context, _ image.Image, f Format, _ float64) ([]byte, error) {
		if f != JPEG {
			return nil, ErrUnsupportedFormat
		}
		return []byte{0xff, 0xd8}, nil
	})

	caps := probeFormats(onlyJPEG)
	assert.Equal(t, map[Format]bool{JPEG: true, WebP: false, PNG: false}, caps)
}

func TestEffectiveFormat(t *testing.T) {
	assert.Equal(t, JPEG, EffectiveFormat(JPEG, 1000))
	assert.Equal(t, WebP, EffectiveFormat(WebP, 1000))
	assert.Equal(t, PNG, EffectiveFormat(PNG, 0))

	sub := EffectiveFormat(PNG, 1000)
	if Supported(WebP) {
		assert.Equal(t, WebP, sub)
	} else {
		assert.Equal(t, JPEG, sub)
	}
}
