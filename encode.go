package squeeze

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"sync"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// Encoder encodes an image at a quality in [0, 1]. The compressor treats it as
// an opaque cost function size(q) = len(Encode(img, q)) and assumes only that
// size does not decrease as quality grows.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, format Format, quality float64) ([]byte, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, img image.Image, format Format, quality float64) ([]byte, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, img image.Image, format Format, quality float64) ([]byte, error) {
	return f(ctx, img, format, quality)
}

// FormatSupporter is implemented by encoders that can report their own
// capabilities. Encoders without it are probed once with a 1x1 image.
type FormatSupporter interface {
	Supports(format Format) bool
}

// StdEncoder encodes JPEG with image/jpeg, WebP with libwebp and PNG with
// image/png at best compression. PNG ignores quality.
type StdEncoder struct{}

var (
	_ Encoder         = StdEncoder{}
	_ FormatSupporter = StdEncoder{}
)

// Supports reports the process-wide capability probe.
func (StdEncoder) Supports(format Format) bool { return Supported(format) }

// Encode implements Encoder.
func (StdEncoder) Encode(ctx context.Context, img image.Image, format Format, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quality < 0 || quality > 1 || math.IsNaN(quality) {
		return nil, errors.Wrapf(ErrInvalidQuality, "%v", quality)
	}
	if r, ok := img.(*Raster); ok {
		img = r.img
	}

	var buf bytes.Buffer
	switch format {
	case JPEG:
		src := img
		if nrgba, ok := img.(*image.NRGBA); ok {
			src = opaqueView(nrgba)
		}
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
			return nil, errors.Wrap(err, "squeeze: JPEG encode")
		}
	case WebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: webpQuality(quality)}); err != nil {
			return nil, errors.Wrap(err, "squeeze: WebP encode")
		}
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, errors.Wrap(err, "squeeze: PNG encode")
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%d", int(format))
	}
	return buf.Bytes(), nil
}

// jpegQuality maps [0, 1] onto image/jpeg's 1..100 scale.
func jpegQuality(q float64) int {
	return clampInt(int(math.Round(q*100)), 1, 100)
}

// webpQuality maps [0, 1] onto libwebp's 0..100 scale.
func webpQuality(q float64) float32 {
	return float32(math.Min(100, math.Max(0, q*100)))
}

// Capability probes run once per process. After the first call the table is
// read-only and safe for concurrent readers.
var (
	capsOnce sync.Once
	caps     map[Format]bool
)

// Supported reports whether the host encoder can produce format. The first
// caller probes every format by encoding a 1x1 image; concurrent first callers
// wait for that single probe.
func Supported(format Format) bool {
	capsOnce.Do(func() {
		caps = probeFormats(StdEncoder{})
	})
	return caps[format]
}

func probeFormats(enc Encoder) map[Format]bool {
	pixel := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	pixel.Pix[3] = 0xff

	out := make(map[Format]bool, 3)
	for _, f := range []Format{JPEG, WebP, PNG} {
		data, err := enc.Encode(context.Background(), pixel, f, MaxQuality)
		out[f] = err == nil && len(data) > 0
	}
	return out
}

// EffectiveFormat returns the format a request will actually produce with
// StdEncoder. A lossless format asked to hit a byte budget is replaced by
// WebP, which keeps alpha, or by JPEG where WebP is unavailable. Use
// Compressor.EffectiveFormat when a custom encoder is installed.
func EffectiveFormat(format Format, targetSize int) Format {
	return effectiveFormat(format, targetSize, Supported)
}

func effectiveFormat(format Format, targetSize int, supports func(Format) bool) Format {
	if targetSize <= 0 || format.Lossy() {
		return format
	}
	if supports(WebP) {
		return WebP
	}
	return JPEG
}
