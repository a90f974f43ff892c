// Package squeeze compresses images to a byte budget.
//
// Given any decodable image and a target size, squeeze searches the lossy
// encoder's quality parameter to land as close to the target as it can,
// without a human nudging sliders:
//
//   - Saturation probes: one encode at maximum quality short-circuits inputs
//     that already fit; one at minimum quality detects unreachable targets
//   - Resolution fallback: when minimum quality is still too large the image
//     is downscaled in stages, by an area ratio with a safety margin
//   - Bounded binary search: a fixed number of encodes over quality, keeping
//     the closest candidate seen
//   - Batch processing: a small worker pool compresses independent images
//
// The search never fails because a target is unreachable. Callers compare
// Result.Size() with the budget themselves.
package squeeze

import (
	"bytes"
	"context"
	"image"
	"io"
	"os"

	"github.com/pkg/errors"
)

// CompressFile compresses an image file and writes the result to dst.
func CompressFile(ctx context.Context, src, dst string, opts Options) (*Result, error) {
	if err := opts.reportProgress(ctx, StageDecoding, 0); err != nil {
		return nil, err
	}

	raster, _, fileSize, err := openRaster(src, opts.AutoOrient)
	if err != nil {
		return nil, err
	}

	result, err := compressRaster(ctx, raster, fileSize, opts)
	if err != nil {
		return nil, err
	}

	if err := opts.reportProgress(ctx, StageWriting, 0.95); err != nil {
		return nil, err
	}
	if err := os.WriteFile(dst, result.Data, 0644); err != nil {
		return nil, errors.Wrapf(err, "squeeze: write %q", dst)
	}
	if err := opts.reportProgress(ctx, StageWriting, 1.0); err != nil {
		return nil, err
	}
	return result, nil
}

// CompressImage compresses an already-decoded image.
func CompressImage(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	raster, ok := img.(*Raster)
	if !ok {
		var err error
		if raster, err = NewRaster(img); err != nil {
			return nil, err
		}
	}
	return compressRaster(ctx, raster, 0, opts)
}

// Compress decodes an image from r and compresses it.
func Compress(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	if err := opts.reportProgress(ctx, StageDecoding, 0); err != nil {
		return nil, err
	}
	raster, _, err := Decode(r, opts.AutoOrient)
	if err != nil {
		return nil, err
	}
	return compressRaster(ctx, raster, 0, opts)
}

// CompressBytes compresses image data held in memory.
func CompressBytes(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if err := opts.reportProgress(ctx, StageDecoding, 0); err != nil {
		return nil, err
	}
	raster, _, err := Decode(bytes.NewReader(data), opts.AutoOrient)
	if err != nil {
		return nil, err
	}
	return compressRaster(ctx, raster, int64(len(data)), opts)
}

// compressRaster is the shared pipeline: fit to the bounding box, then either
// search for TargetSize or encode once at Quality.
func compressRaster(ctx context.Context, raster *Raster, originalSize int64, opts Options) (*Result, error) {
	if raster == nil {
		return nil, ErrEmptyImage
	}
	orig := raster.Size()

	if opts.MaxWidth > 0 || opts.MaxHeight > 0 {
		if err := opts.reportProgress(ctx, StageResampling, 0.05); err != nil {
			return nil, err
		}
		fitted, err := Fit(raster, opts.MaxWidth, opts.MaxHeight, opts.Resample)
		if err != nil {
			return nil, err
		}
		raster = fitted
	}

	c := NewCompressor(opts)

	var (
		result *Result
		err    error
	)
	// Only a zero TargetSize selects the direct mode; negative budgets are
	// rejected by CompressToTarget.
	if opts.TargetSize != 0 {
		result, err = c.CompressToTarget(ctx, raster, opts.TargetSize, opts.Format)
		if err != nil {
			return nil, errors.Wrap(err, "squeeze: target-size compression")
		}
	} else {
		result, err = c.CompressToQuality(ctx, raster, opts.Quality, opts.Format)
		if err != nil {
			return nil, errors.Wrap(err, "squeeze: direct compression")
		}
	}

	result.OriginalDimensions = orig
	result.OriginalSize = originalSize
	result.computeStats()
	return result, nil
}
