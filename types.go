package squeeze

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Version is the library version.
const Version = "1.0.0"

// Quality bounds used by the target-size search.
const (
	MaxQuality = 1.0
	MinQuality = 0.01
)

const (
	// DefaultIterations is the number of binary-search encodes. Ten halvings
	// narrow the quality bracket to about 1/1024.
	DefaultIterations = 10

	// DefaultSafetyMargin undershoots the pixel-count scale factor used when
	// quality alone cannot reach the target.
	DefaultSafetyMargin = 0.9

	// DefaultWorkers is the batch fan-out.
	DefaultWorkers = 3

	// DefaultQuality is used by the direct-quality mode when none is given.
	DefaultQuality = 0.85
)

// Sentinel errors. Test with errors.Is.
var (
	ErrInvalidTarget     = errors.New("squeeze: target size must be positive")
	ErrInvalidQuality    = errors.New("squeeze: quality must be within [0, 1]")
	ErrInvalidDimensions = errors.New("squeeze: dimensions must be positive")
	ErrEmptyImage        = errors.New("squeeze: empty image")
	ErrUnsupportedFormat = errors.New("squeeze: unsupported format")
	ErrNoData            = errors.New("squeeze: no compressed data available")
)

// Format represents an output image format.
type Format int

const (
	// JPEG is a lossy DCT format without alpha.
	JPEG Format = iota
	// WebP is a lossy VP8 format that keeps alpha.
	WebP
	// PNG is lossless and has no quality knob.
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "JPEG"
	case WebP:
		return "WebP"
	case PNG:
		return "PNG"
	default:
		return "Unknown"
	}
}

// Lossy reports whether the format responds to a quality parameter.
func (f Format) Lossy() bool {
	return f == JPEG || f == WebP
}

// Extension returns the conventional file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case WebP:
		return ".webp"
	case PNG:
		return ".png"
	default:
		return ".jpg"
	}
}

// ParseFormat maps a name or extension (jpeg, jpg, .webp, png) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "jpeg", "jpg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	case "png":
		return PNG, nil
	}
	return JPEG, errors.Wrapf(ErrUnsupportedFormat, "%q", s)
}

// ResampleMethod selects the resampling strategy.
// The zero value is HighQuality.
type ResampleMethod int

const (
	// HighQuality halves in stages before a final smoothed step.
	HighQuality ResampleMethod = iota
	// Fast does a single smoothed step.
	Fast
	// NearestExact does a single nearest-neighbour step. Keeps pixel-art edges.
	NearestExact
)

func (m ResampleMethod) String() string {
	switch m {
	case Fast:
		return "fast"
	case NearestExact:
		return "nearest-exact"
	default:
		return "high-quality"
	}
}

// ParseResampleMethod maps high-quality, fast or nearest-exact to a ResampleMethod.
func ParseResampleMethod(s string) (ResampleMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high-quality", "high", "hq":
		return HighQuality, nil
	case "fast":
		return Fast, nil
	case "nearest-exact", "nearest", "pixelated":
		return NearestExact, nil
	}
	return HighQuality, errors.Errorf("squeeze: unknown resample method %q", s)
}

// Outcome tells how a result was reached.
type Outcome int

const (
	// OutcomeFits means the max-quality encoding already met the budget.
	OutcomeFits Outcome = iota
	// OutcomeCompressed means the quality search produced the result.
	OutcomeCompressed
	// OutcomeResampled means the resolution had to be reduced.
	OutcomeResampled
	// OutcomeDirect means a fixed quality was requested.
	OutcomeDirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFits:
		return "fits"
	case OutcomeCompressed:
		return "compressed"
	case OutcomeResampled:
		return "resampled"
	case OutcomeDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// ProgressStage describes what the compressor is currently doing.
type ProgressStage string

const (
	StageDecoding   ProgressStage = "decoding"
	StageProbing    ProgressStage = "probing"
	StageResampling ProgressStage = "resampling"
	StageSearching  ProgressStage = "searching"
	StageWriting    ProgressStage = "writing"
)

// ProgressFunc is called during compression to report progress.
// percent is 0.0–1.0. Return a non-nil error to abort the operation.
type ProgressFunc func(stage ProgressStage, percent float64) error

// Options configures compression.
type Options struct {
	// Format is the requested output format. Lossless formats are replaced by
	// a lossy one when TargetSize is set.
	Format Format

	// TargetSize is the byte budget. 0 selects the direct-quality mode;
	// negative values fail with ErrInvalidTarget.
	TargetSize int

	// Quality in [0, 1] for the direct-quality mode.
	Quality float64

	// Resample is used for MaxWidth/MaxHeight fitting. The target-size
	// fallback always uses HighQuality.
	Resample ResampleMethod

	// MaxWidth and MaxHeight bound the output before compression.
	// 0 means no constraint. Aspect ratio is preserved.
	MaxWidth  int
	MaxHeight int

	// AutoOrient applies EXIF orientation when decoding.
	AutoOrient bool

	// SafetyMargin multiplies the fallback scale factor. 0 means DefaultSafetyMargin.
	SafetyMargin float64

	// Iterations is the binary-search encode budget. 0 means DefaultIterations.
	Iterations int

	// Encoder overrides the host encoder. nil means StdEncoder.
	Encoder Encoder

	// Logger receives debug traces of every probe. nil disables logging.
	Logger *zap.Logger

	// OnProgress is optional. Returning a non-nil error aborts the operation.
	OnProgress ProgressFunc
}

// DefaultOptions returns sensible defaults for general use.
func DefaultOptions() Options {
	return Options{
		Format:       JPEG,
		Quality:      DefaultQuality,
		Resample:     HighQuality,
		AutoOrient:   true,
		SafetyMargin: DefaultSafetyMargin,
		Iterations:   DefaultIterations,
	}
}

func (o *Options) reportProgress(ctx context.Context, stage ProgressStage, percent float64) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if o.OnProgress != nil {
		return o.OnProgress(stage, percent)
	}
	return nil
}

// Request is one target-size compression job.
type Request struct {
	Raster      *Raster
	TargetBytes int
	Format      Format
}

// Result contains the encoded bytes and statistics.
type Result struct {
	// Data holds the encoded bytes. len(Data) is the achieved size; it is the
	// closest the search found to TargetBytes, not necessarily below it.
	Data []byte

	// Format is the format actually produced.
	Format Format

	// Quality is the quality parameter of the returned encoding.
	Quality float64

	// Width and Height are the output dimensions.
	Width  int
	Height int

	// Elapsed is the wall-clock time of the compression.
	Elapsed time.Duration

	Outcome Outcome

	// Probes counts encode calls.
	Probes int

	// TargetBytes is the requested budget, 0 in direct mode.
	TargetBytes int

	// OriginalSize is the input size in bytes, when known.
	OriginalSize int64

	OriginalDimensions image.Point

	// Ratio is OriginalSize / Size.
	Ratio float64

	// SavingsPercent is the percentage of bytes saved.
	SavingsPercent float64
}

// Size returns the encoded size in bytes.
func (r *Result) Size() int {
	return len(r.Data)
}

// Bytes returns the encoded data.
func (r *Result) Bytes() []byte {
	return r.Data
}

// ElapsedMs returns Elapsed in fractional milliseconds.
func (r *Result) ElapsedMs() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// MetTarget reports whether the result is within the requested budget.
// Always true in direct mode.
func (r *Result) MetTarget() bool {
	return r.TargetBytes <= 0 || len(r.Data) <= r.TargetBytes
}

// WriteTo writes the encoded bytes to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	if len(r.Data) == 0 {
		return 0, ErrNoData
	}
	n, err := w.Write(r.Data)
	return int64(n), err
}

// String returns a human-readable summary of the result.
func (r *Result) String() string {
	target := ""
	if r.TargetBytes > 0 {
		target = fmt.Sprintf(" (target %s)", humanize.IBytes(uint64(r.TargetBytes)))
	}
	orig := ""
	if r.OriginalSize > 0 {
		orig = humanize.IBytes(uint64(r.OriginalSize)) + " → "
	}
	return fmt.Sprintf(
		"%s Q=%.3f | %dx%d → %dx%d | %s%s%s | %s, %d probes, %s",
		r.Format, r.Quality,
		r.OriginalDimensions.X, r.OriginalDimensions.Y, r.Width, r.Height,
		orig, humanize.IBytes(uint64(len(r.Data))), target,
		r.Outcome, r.Probes, r.Elapsed.Round(time.Millisecond),
	)
}

// computeStats fills in Ratio and SavingsPercent from sizes.
func (r *Result) computeStats() {
	size := int64(len(r.Data))
	if r.OriginalSize > 0 && size > 0 {
		r.Ratio = float64(r.OriginalSize) / float64(size)
		r.SavingsPercent = (1 - float64(size)/float64(r.OriginalSize)) * 100
	}
}
