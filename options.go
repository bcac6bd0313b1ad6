package pixelpipe

// PipelineOption configures a Pipeline during construction.
//
// Example:
//
//	p := pixelpipe.NewPipeline(pixelpipe.KindPreview,
//	    pixelpipe.WithCacheEntries(4, 64<<20),
//	    pixelpipe.WithWorkers(8),
//	)
type PipelineOption func(*pipelineOptions)

// pipelineOptions holds optional configuration for Pipeline construction.
type pipelineOptions struct {
	cacheEntries int
	cacheSize    int
	workers      int
	gpu          bool
}

// defaultOptions returns the default pipeline options for kind.
func defaultOptions(kind Kind) pipelineOptions {
	entries, size, gpu := kind.defaultCache()
	return pipelineOptions{
		cacheEntries: entries,
		cacheSize:    size,
		workers:      0, // 0 == runtime.GOMAXPROCS, resolved by the worker pool
		gpu:          gpu,
	}
}

// WithCacheEntries sets the number of buffer-cache slots and a per-slot
// byte size, overriding the kind's default. The size is stored in the
// options only; the cache does not preallocate slots to it.
func WithCacheEntries(entries, size int) PipelineOption {
	return func(o *pipelineOptions) {
		o.cacheEntries = entries
		o.cacheSize = size
	}
}

// WithWorkers sets the number of goroutines in the pipeline's shared
// worker pool. 0 selects runtime.GOMAXPROCS.
func WithWorkers(workers int) PipelineOption {
	return func(o *pipelineOptions) {
		o.workers = workers
	}
}

// WithGPU overrides whether the pipeline attempts GPU dispatch, regardless
// of the kind's default.
func WithGPU(enabled bool) PipelineOption {
	return func(o *pipelineOptions) {
		o.gpu = enabled
	}
}
