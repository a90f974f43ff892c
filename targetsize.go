package squeeze

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Compressor finds the encoding closest to a byte budget. It holds no
// per-request state and is safe for concurrent use.
type Compressor struct {
	opts Options
	enc  Encoder
	log  *zap.Logger

	// capabilities of enc when it is not a FormatSupporter
	capsOnce sync.Once
	caps     map[Format]bool
}

// NewCompressor builds a Compressor from opts. Zero-valued tuning fields
// fall back to their defaults.
func NewCompressor(opts Options) *Compressor {
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultIterations
	}
	if opts.SafetyMargin <= 0 || opts.SafetyMargin > 1 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	enc := opts.Encoder
	if enc == nil {
		enc = StdEncoder{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Compressor{opts: opts, enc: enc, log: log}
}

// EffectiveFormat is like the package-level EffectiveFormat but judges WebP
// support by the compressor's own encoder.
func (c *Compressor) EffectiveFormat(format Format, targetSize int) Format {
	return effectiveFormat(format, targetSize, c.supports)
}

func (c *Compressor) supports(format Format) bool {
	if s, ok := c.enc.(FormatSupporter); ok {
		return s.Supports(format)
	}
	c.capsOnce.Do(func() {
		c.caps = probeFormats(c.enc)
	})
	return c.caps[format]
}

// candidate is one probe's output.
type candidate struct {
	data    []byte
	quality float64
	raster  *Raster
}

// searchState lives for a single request.
type searchState struct {
	low, high float64
	best      *candidate
	bestDiff  int64
	probes    int
}

func newSearchState() *searchState {
	return &searchState{low: MinQuality, high: MaxQuality, bestDiff: math.MaxInt64}
}

// consider keeps c if it is strictly closer to target than anything seen.
func (s *searchState) consider(c *candidate, target int) {
	diff := abs64(int64(len(c.data)) - int64(target))
	if s.best == nil || diff < s.bestDiff {
		s.best = c
		s.bestDiff = diff
	}
}

// outcome reports whether the best candidate came from a downscaled raster.
func (s *searchState) outcome(src *Raster) Outcome {
	if s.best.raster != src {
		return OutcomeResampled
	}
	return OutcomeCompressed
}

// Run executes a Request.
func (c *Compressor) Run(ctx context.Context, req Request) (*Result, error) {
	return c.CompressToTarget(ctx, req.Raster, req.TargetBytes, req.Format)
}

// CompressToTarget returns the encoding of r whose size is closest to
// targetBytes.
//
// It probes maximum quality first and returns at once if that already fits.
// Otherwise it probes minimum quality; when even that is too large the raster
// is downscaled by sqrt(target/size) times the safety margin and probed again
// at maximum quality. A fixed number of binary-search steps over quality
// follows. The closest probe overall is returned, so an unreachable target
// still yields the best effort rather than an error.
//
// Lossless formats cannot be shrunk by quality and are replaced by WebP, or
// JPEG where the encoder cannot produce WebP.
//
// The closest probe may be over budget even when an under-budget one exists,
// e.g. a full-resolution probe beating a downscaled one that fits. Check
// Result.MetTarget when the budget is a hard limit.
func (c *Compressor) CompressToTarget(ctx context.Context, r *Raster, targetBytes int, format Format) (*Result, error) {
	start := time.Now()

	if r == nil {
		return nil, ErrEmptyImage
	}
	if targetBytes <= 0 {
		return nil, errors.Wrapf(ErrInvalidTarget, "got %d", targetBytes)
	}
	if !validFormat(format) {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%d", int(format))
	}
	if sub := c.EffectiveFormat(format, targetBytes); sub != format {
		c.log.Debug("lossless format cannot target a size, substituting",
			zap.Stringer("requested", format), zap.Stringer("using", sub))
		format = sub
	}

	log := c.log.With(zap.Stringer("format", format), zap.Int("target", targetBytes))
	st := newSearchState()

	if err := c.opts.reportProgress(ctx, StageProbing, 0.1); err != nil {
		return nil, err
	}
	top, err := c.probe(ctx, log, st, r, format, MaxQuality, targetBytes)
	if err != nil {
		return nil, err
	}
	if len(top.data) <= targetBytes {
		return c.finish(st, r, format, targetBytes, OutcomeFits, start), nil
	}

	bottom, err := c.probe(ctx, log, st, r, format, MinQuality, targetBytes)
	if err != nil {
		return nil, err
	}

	cur := r
	if len(bottom.data) > targetBytes {
		if err := c.opts.reportProgress(ctx, StageResampling, 0.3); err != nil {
			return nil, err
		}
		s := math.Sqrt(float64(targetBytes)/float64(len(bottom.data))) * c.opts.SafetyMargin
		w, h := scaledDimensions(r.Width(), r.Height(), s)
		log.Debug("minimum quality exceeds target, downscaling",
			zap.Int("min_size", len(bottom.data)), zap.Float64("scale", s),
			zap.Int("width", w), zap.Int("height", h))

		cur, err = Resample(r, w, h, HighQuality)
		if err != nil {
			return nil, errors.Wrap(err, "squeeze: fallback resample")
		}

		top, err = c.probe(ctx, log, st, cur, format, MaxQuality, targetBytes)
		if err != nil {
			return nil, err
		}
		if len(top.data) <= targetBytes {
			return c.finish(st, r, format, targetBytes, st.outcome(r), start), nil
		}
	}

	for i := 0; i < c.opts.Iterations; i++ {
		if err := c.opts.reportProgress(ctx, StageSearching, 0.4+0.5*float64(i)/float64(c.opts.Iterations)); err != nil {
			return nil, err
		}
		mid := (st.low + st.high) / 2
		cand, err := c.probe(ctx, log, st, cur, format, mid, targetBytes)
		if err != nil {
			return nil, err
		}
		if len(cand.data) > targetBytes {
			st.high = mid
		} else {
			st.low = mid
		}
	}

	return c.finish(st, r, format, targetBytes, st.outcome(r), start), nil
}

// CompressToQuality encodes r once at a fixed quality.
func (c *Compressor) CompressToQuality(ctx context.Context, r *Raster, quality float64, format Format) (*Result, error) {
	start := time.Now()

	if r == nil {
		return nil, ErrEmptyImage
	}
	if quality < 0 || quality > 1 || math.IsNaN(quality) {
		return nil, errors.Wrapf(ErrInvalidQuality, "got %v", quality)
	}
	if !validFormat(format) {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%d", int(format))
	}

	st := newSearchState()
	if _, err := c.probe(ctx, c.log.With(zap.Stringer("format", format)), st, r, format, quality, 0); err != nil {
		return nil, err
	}
	return c.finish(st, r, format, 0, OutcomeDirect, start), nil
}

// probe encodes r at quality q and records the candidate.
func (c *Compressor) probe(ctx context.Context, log *zap.Logger, st *searchState, r *Raster, format Format, q float64, target int) (*candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.enc.Encode(ctx, r.img, format, q)
	st.probes++
	if err != nil {
		return nil, errors.Wrapf(err, "squeeze: encode %s at quality %.3f", format, q)
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrNoData, "encode %s at quality %.3f", format, q)
	}

	cand := &candidate{data: data, quality: q, raster: r}
	st.consider(cand, target)

	log.Debug("probe",
		zap.Int("n", st.probes),
		zap.Float64("quality", q),
		zap.Int("size", len(data)),
		zap.Int("width", r.Width()),
		zap.Int("height", r.Height()),
		zap.Int64("best_diff", st.bestDiff))
	return cand, nil
}

func (c *Compressor) finish(st *searchState, src *Raster, format Format, target int, outcome Outcome, start time.Time) *Result {
	best := st.best
	return &Result{
		Data:               best.data,
		Format:             format,
		Quality:            best.quality,
		Width:              best.raster.Width(),
		Height:             best.raster.Height(),
		Elapsed:            time.Since(start),
		Outcome:            outcome,
		Probes:             st.probes,
		TargetBytes:        target,
		OriginalDimensions: src.Size(),
	}
}

func validFormat(f Format) bool {
	return f >= JPEG && f <= PNG
}
