package squeeze_test

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shamspias/squeeze"
)

func ExampleCompressFile() {
	ctx := context.Background()
	opts := squeeze.DefaultOptions()
	opts.TargetSize = 100 * 1000 // 100 KB

	result, err := squeeze.CompressFile(ctx, "photo.jpg", "photo_small.jpg", opts)
	if err != nil {
		panic(err)
	}
	fmt.Println(result)
	if !result.MetTarget() {
		fmt.Println("closest achievable size is above the budget")
	}
}

func ExampleCompressImage() {
	ctx := context.Background()

	img, err := squeeze.Open("photo.jpg", true)
	if err != nil {
		panic(err)
	}

	opts := squeeze.DefaultOptions()
	opts.Quality = 0.7
	opts.MaxWidth = 1920

	result, err := squeeze.CompressImage(ctx, img, opts)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%dx%d, saved %.1f%%\n", result.Width, result.Height, result.SavingsPercent)
}

func ExampleCompressBytes() {
	ctx := context.Background()

	// Common server-side pattern: receive bytes, compress, return bytes.
	inputData := []byte{} // ... from an HTTP request, object storage, etc.

	opts := squeeze.DefaultOptions()
	opts.Format = squeeze.WebP
	opts.TargetSize = 50 * 1024

	result, err := squeeze.CompressBytes(ctx, inputData, opts)
	if err != nil {
		panic(err)
	}

	outputData := result.Bytes() // Ready to write to a response or storage.
	_ = outputData
}

func ExampleCompressor_CompressToTarget() {
	ctx := context.Background()

	raster, err := squeeze.Open("scan.png", true)
	if err != nil {
		panic(err)
	}

	opts := squeeze.DefaultOptions()
	opts.Logger, _ = zap.NewDevelopment()
	c := squeeze.NewCompressor(opts)

	result, err := c.CompressToTarget(ctx, raster, 20*1024, squeeze.JPEG)
	if err != nil {
		panic(err)
	}
	fmt.Println(result.Outcome, result.Size(), result.Probes)
}

func ExampleCompressBatch() {
	ctx := context.Background()

	opts := squeeze.DefaultOptions()
	opts.TargetSize = 200 * 1000

	items := []squeeze.BatchItem{
		{Src: "photo1.jpg", Dst: "out/photo1.jpg"},
		{Src: "photo2.png", Dst: "out/photo2.webp"},
		{Src: "photo3.jpg", Dst: "out/photo3.jpg"},
	}

	results := squeeze.CompressBatch(ctx, items, squeeze.BatchOptions{
		Workers:     4,
		DefaultOpts: opts,
		OnItem: func(completed, total int) {
			fmt.Printf("Progress: %d/%d\n", completed, total)
		},
	})

	summary := squeeze.Summarize(results)
	fmt.Println(summary)
}
