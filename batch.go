package squeeze

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// RequestResult holds the outcome of one in-memory Request.
type RequestResult struct {
	Request Request
	Result  *Result
	Err     error
	Index   int
}

// RunAll compresses independent requests on a pool of workers (DefaultWorkers
// when workers <= 0). Results are returned in input order; completion order is
// not. One request failing does not affect the others. Requests not started
// before ctx is done report ctx.Err().
func (c *Compressor) RunAll(ctx context.Context, reqs []Request, workers int) []RequestResult {
	results := make([]RequestResult, len(reqs))
	runPool(ctx, len(reqs), workers, func(idx int, err error) {
		res := RequestResult{Request: reqs[idx], Err: err, Index: idx}
		if err == nil {
			res.Result, res.Err = c.Run(ctx, reqs[idx])
		}
		if res.Err != nil {
			c.log.Warn("request failed", zap.Int("index", idx), zap.Error(res.Err))
		}
		results[idx] = res
	})
	return results
}

// BatchItem represents one file to compress in a batch operation.
type BatchItem struct {
	// Src is the input file path.
	Src string
	// Dst is the output file path.
	Dst string
	// Opts are the per-item options. If nil, BatchOptions.DefaultOpts is used.
	Opts *Options
}

// BatchResult holds the result for a single item in a batch.
type BatchResult struct {
	// Item is the original batch item.
	Item BatchItem
	// Result is the compression result (nil if Err is non-nil).
	Result *Result
	// Err is any error that occurred.
	Err error
	// Index is the position in the original input slice.
	Index int
}

// BatchOptions configures batch compression behavior.
type BatchOptions struct {
	// Workers is the number of concurrent workers. 0 = DefaultWorkers.
	Workers int
	// DefaultOpts is used for any BatchItem where Opts is nil.
	DefaultOpts Options
	// OnItem is called after each item completes, from the worker goroutine.
	OnItem func(completed, total int)
}

// CompressBatch compresses multiple image files concurrently.
// Results are returned in the same order as the input items. Cancelling ctx
// stops new items from starting; in-flight items observe ctx between probes.
//
// Example:
//
//	items := []squeeze.BatchItem{
//	    {Src: "photo1.jpg", Dst: "out1.jpg"},
//	    {Src: "photo2.png", Dst: "out2.webp"},
//	}
//	results := squeeze.CompressBatch(ctx, items, squeeze.BatchOptions{
//	    DefaultOpts: opts,
//	})
func CompressBatch(ctx context.Context, items []BatchItem, batchOpts BatchOptions) []BatchResult {
	if len(items) == 0 {
		return nil
	}

	results := make([]BatchResult, len(items))
	var (
		completed   int
		completedMu sync.Mutex
	)

	runPool(ctx, len(items), batchOpts.Workers, func(idx int, err error) {
		item := items[idx]
		res := BatchResult{Item: item, Err: err, Index: idx}
		if err == nil {
			opts := batchOpts.DefaultOpts
			if item.Opts != nil {
				opts = *item.Opts
			}
			res.Result, res.Err = CompressFile(ctx, item.Src, item.Dst, opts)
			if res.Err != nil && opts.Logger != nil {
				opts.Logger.Warn("batch item failed", zap.String("src", item.Src), zap.Error(res.Err))
			}
		}
		results[idx] = res

		if batchOpts.OnItem != nil {
			completedMu.Lock()
			completed++
			n := completed
			completedMu.Unlock()
			batchOpts.OnItem(n, len(items))
		}
	})
	return results
}

// runPool calls fn(i, nil) for every i in [0, n) on a bounded set of
// goroutines and waits for all of them. Indices dequeued after ctx is done get
// fn(i, ctx.Err()) instead.
func runPool(ctx context.Context, n, workers int, fn func(idx int, err error)) {
	if n == 0 {
		return
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > n {
		workers = n
	}

	workCh := make(chan int, n)
	for i := 0; i < n; i++ {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				if err := ctx.Err(); err != nil {
					fn(idx, err)
					continue
				}
				fn(idx, nil)
			}
		}()
	}
	wg.Wait()
}

// BatchSummary provides aggregate statistics for a batch operation.
type BatchSummary struct {
	Total      int
	Succeeded  int
	Failed     int
	MetTarget  int
	TotalSaved int64
}

// Summarize computes aggregate statistics from batch results.
func Summarize(results []BatchResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil || r.Result == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		if r.Result.MetTarget() {
			s.MetTarget++
		}
		if r.Result.OriginalSize > 0 {
			s.TotalSaved += r.Result.OriginalSize - int64(r.Result.Size())
		}
	}
	return s
}

// String returns a human-readable batch summary.
func (s BatchSummary) String() string {
	saved := humanize.IBytes(uint64(abs64(s.TotalSaved)))
	if s.TotalSaved < 0 {
		saved = "-" + saved
	}
	return fmt.Sprintf(
		"Batch: %d/%d succeeded | %d within target | %s saved",
		s.Succeeded, s.Total, s.MetTarget, saved,
	)
}
