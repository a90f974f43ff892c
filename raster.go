package squeeze

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Raster is an immutable decoded bitmap. It is safe to share between
// goroutines; nothing in this package writes to its pixels after creation.
type Raster struct {
	img *image.NRGBA
}

// NewRaster copies img into a new Raster.
func NewRaster(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Wrapf(ErrEmptyImage, "%dx%d", b.Dx(), b.Dy())
	}
	return &Raster{img: toNRGBA(img)}, nil
}

// wrapNRGBA adopts an image produced inside the package without copying.
func wrapNRGBA(img *image.NRGBA) *Raster {
	return &Raster{img: img}
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.img.Bounds().Dx() }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.img.Bounds().Dy() }

// Bounds returns the zero-origin bounds of the raster.
func (r *Raster) Bounds() image.Rectangle { return r.img.Bounds() }

// Size returns the dimensions as a point.
func (r *Raster) Size() image.Point { return r.img.Bounds().Size() }

// ColorModel implements image.Image.
func (r *Raster) ColorModel() color.Model { return color.NRGBAModel }

// At implements image.Image.
func (r *Raster) At(x, y int) color.Color { return r.img.At(x, y) }

// Image returns the backing image. Callers must not modify it.
func (r *Raster) Image() *image.NRGBA { return r.img }

// Opaque reports whether every pixel has full alpha.
func (r *Raster) Opaque() bool { return isOpaque(r.img) }
