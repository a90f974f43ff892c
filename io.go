package squeeze

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imageorient"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode reads a JPEG, PNG, GIF, WebP or BMP image into a Raster and returns
// the detected format name. With autoOrient the EXIF orientation tag is
// applied so the raster is upright.
func Decode(r io.Reader, autoOrient bool) (*Raster, string, error) {
	var (
		img  image.Image
		kind string
		err  error
	)
	if autoOrient {
		img, kind, err = imageorient.Decode(r)
	} else {
		img, kind, err = image.Decode(r)
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "squeeze: decode")
	}

	raster, err := NewRaster(img)
	if err != nil {
		return nil, "", err
	}
	return raster, kind, nil
}

// Open loads an image file into a Raster.
func Open(filename string, autoOrient bool) (*Raster, error) {
	raster, _, _, err := openRaster(filename, autoOrient)
	return raster, err
}

// openRaster decodes a file and also returns its format name and byte size.
func openRaster(filename string, autoOrient bool) (*Raster, string, int64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, "", 0, errors.Wrapf(err, "squeeze: open %q", filename)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, "", 0, errors.Wrapf(err, "squeeze: stat %q", filename)
	}

	raster, kind, err := Decode(f, autoOrient)
	if err != nil {
		return nil, "", 0, errors.Wrapf(err, "%q", filename)
	}
	return raster, kind, stat.Size(), nil
}
