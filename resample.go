package squeeze

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Resample returns a new raster of exactly w x h.
//
// HighQuality halves both dimensions in stages while the source is more than
// twice the target, then finishes with one Catmull-Rom step. A single large
// bilinear step samples too few source pixels and aliases; each halving step
// averages a full 2x2 neighbourhood instead. Fast does one Lanczos-3 step and
// NearestExact one nearest-neighbour step.
func Resample(src *Raster, w, h int, method ResampleMethod) (*Raster, error) {
	if src == nil {
		return nil, ErrEmptyImage
	}
	if w <= 0 || h <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "resample to %dx%d", w, h)
	}
	if w == src.Width() && h == src.Height() {
		return src, nil
	}

	switch method {
	case NearestExact:
		return wrapNRGBA(scaleWith(src.img, w, h, draw.NearestNeighbor)), nil
	case Fast:
		out := resize.Resize(uint(w), uint(h), opaqueView(src.img), resize.Lanczos3)
		return wrapNRGBA(toNRGBA(out)), nil
	default:
		cur := src.img
		for _, step := range halvingPlan(src.Width(), src.Height(), w, h) {
			cur = scaleWith(cur, step.X, step.Y, draw.BiLinear)
		}
		return wrapNRGBA(scaleWith(cur, w, h, draw.CatmullRom)), nil
	}
}

// halvingPlan lists the intermediate sizes of the staged downscale. It stops
// before a halving would drop below the target in either dimension.
func halvingPlan(srcW, srcH, dstW, dstH int) []image.Point {
	var steps []image.Point
	w, h := float64(srcW), float64(srcH)
	for w/2 > float64(dstW) && h/2 > float64(dstH) {
		w = math.Round(w / 2)
		h = math.Round(h / 2)
		steps = append(steps, image.Pt(int(w), int(h)))
	}
	return steps
}

// scaleWith draws src into a new w x h image. Scaling runs on premultiplied
// RGBA; opaque results are reinterpreted as NRGBA without a copy.
func scaleWith(src *image.NRGBA, w, h int, scaler draw.Scaler) *image.NRGBA {
	opaque := isOpaque(src)
	var in image.Image = src
	if opaque {
		in = &image.RGBA{Pix: src.Pix, Stride: src.Stride, Rect: src.Rect}
	}

	rect := image.Rect(0, 0, w, h)
	dst := image.NewRGBA(rect)
	scaler.Scale(dst, rect, in, src.Bounds(), draw.Src, nil)

	if opaque {
		return &image.NRGBA{Pix: dst.Pix, Stride: dst.Stride, Rect: dst.Rect}
	}
	return convertToNRGBA(dst)
}

// Fit resizes the raster to fit within maxW x maxH, preserving aspect ratio.
// It never upscales; a zero bound means unconstrained.
func Fit(src *Raster, maxW, maxH int, method ResampleMethod) (*Raster, error) {
	if src == nil {
		return nil, ErrEmptyImage
	}
	w, h := fitDimensions(src.Width(), src.Height(), maxW, maxH)
	if w == src.Width() && h == src.Height() {
		return src, nil
	}
	return Resample(src, w, h, method)
}

func fitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if maxW <= 0 {
		maxW = srcW
	}
	if maxH <= 0 {
		maxH = srcH
	}
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH
	}

	ratio := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	return scaledDimensions(srcW, srcH, ratio)
}

// scaledDimensions multiplies both sides by s, rounding, clamped to
// [1, original].
func scaledDimensions(w, h int, s float64) (int, int) {
	sw := int(math.Round(float64(w) * s))
	sh := int(math.Round(float64(h) * s))
	return clampInt(sw, 1, w), clampInt(sh, 1, h)
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
