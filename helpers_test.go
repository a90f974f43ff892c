package squeeze

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ── Test Helpers ────────────────────────────────────────────────────────────

func ctx() context.Context { return context.Background() }

func makeGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*img.Stride + x*4
			img.Pix[off] = uint8(x * 255 / w)
			img.Pix[off+1] = uint8(y * 255 / h)
			img.Pix[off+2] = uint8((x + y) % 256)
			img.Pix[off+3] = 0xff
		}
	}
	return img
}

// makeNoise is photo-like worst case content for lossy codecs.
func makeNoise(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func makeSolid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func mustRaster(t *testing.T, img image.Image) *Raster {
	t.Helper()
	r, err := NewRaster(img)
	require.NoError(t, err)
	return r
}

// probeRecord is one call seen by a recording encoder.
type probeRecord struct {
	quality float64
	format  Format
	width   int
	height  int
	size    int
}

// sizeModel is a deterministic codec stand-in whose output grows linearly with
// pixel count and quality: 64 + w*h*(0.1+q) bytes.
type sizeModel struct {
	mu     sync.Mutex
	probes []probeRecord
	noWebP bool
}

func (m *sizeModel) Supports(format Format) bool {
	return !(m.noWebP && format == WebP)
}

func (m *sizeModel) Encode(_ context.Context, img image.Image, format Format, q float64) ([]byte, error) {
	b := img.Bounds()
	n := 64 + int(float64(b.Dx()*b.Dy())*(0.1+q))
	m.record(probeRecord{quality: q, format: format, width: b.Dx(), height: b.Dy(), size: n})
	return make([]byte, n), nil
}

func (m *sizeModel) record(p probeRecord) {
	m.mu.Lock()
	m.probes = append(m.probes, p)
	m.mu.Unlock()
}

func (m *sizeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.probes)
}

// recorder wraps a real encoder and remembers every probe.
type recorder struct {
	sizeModel
	next Encoder
}

func (r *recorder) Supports(format Format) bool {
	if s, ok := r.next.(FormatSupporter); ok {
		return s.Supports(format)
	}
	return true
}

func (r *recorder) Encode(ctx context.Context, img image.Image, format Format, q float64) ([]byte, error) {
	data, err := r.next.Encode(ctx, img, format, q)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	r.record(probeRecord{quality: q, format: format, width: b.Dx(), height: b.Dy(), size: len(data)})
	return data, nil
}
