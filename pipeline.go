package pixelpipe

import (
	"context"
	"fmt"
	"sync"

	"github.com/rawforge/pixelpipe/internal/cache"
	"github.com/rawforge/pixelpipe/internal/parallel"
)

// Kind is one of the four pipeline kinds, governing cache sizing
// defaults, whether GPU is attempted, and whether the waveform and
// focus-driven reweight paths are live (only Preview).
type Kind int

const (
	KindFull Kind = iota
	KindPreview
	KindThumbnail
	KindExport
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindPreview:
		return "preview"
	case KindThumbnail:
		return "thumbnail"
	case KindExport:
		return "export"
	default:
		return "unknown"
	}
}

// defaultCache returns this kind's default (cache entries, min slot bytes,
// attempt GPU).
func (k Kind) defaultCache() (entries, size int, gpu bool) {
	switch k {
	case KindFull:
		return 5, 64 << 20, true
	case KindPreview:
		return 3, 4 << 20, true
	case KindThumbnail:
		return 2, 512 << 10, false
	case KindExport:
		return 2, 128 << 20, true
	default:
		return 2, 1 << 20, false
	}
}

// waveformLive reports whether the waveform histogram and focus-driven
// reweight paths are live for this kind: only preview.
func (k Kind) waveformLive() bool { return k == KindPreview }

// cacheDesc is the descriptor stored alongside each buffer-cache entry.
type cacheDesc struct {
	Buffer BufferDescriptor
}

// Pipeline is the top-level handle aggregating a run's input buffer,
// ordered node chain, buffer cache, device, worker pool, and the two
// mutexes guarding run state and the published backbuffer.
type Pipeline struct {
	Kind Kind

	opts pipelineOptions

	// busyMu guards the node list, per-node scratch, in-flight run state,
	// and the shutdown flag; held across every non-trivial step of
	// recurse except blocking GPU calls and widget notifications.
	busyMu sync.Mutex

	nodes []*Node

	cache *cache.BufferCache[cacheDesc]
	pool  *parallel.WorkerPool

	input      *HostBuffer
	inputScale float64
	imageID    uint64

	outputProfile OutputProfile

	history        HistorySource
	historyBuilt   bool
	width, height  int // total processed dimensions after modify_roi_out downstream

	shutdown bool

	// backbufMu guards the published backbuffer, its hash, and dimensions.
	backbufMu     sync.Mutex
	backbuf       *HostBuffer
	backbufHash   uint64

	obsoleteCache bool // forces a cache clear at the start of the next run

	naNGuard bool
}

// OutputProfile installs the output ICC binding retained for the final
// colorout operator. The pipeline core treats ICC transform math itself
// as an external collaborator; this struct only carries the binding
// metadata operators consult.
type OutputProfile struct {
	Type     string
	Filename string
	Intent   int
}

// NewPipeline creates a pipeline of the given kind.
func NewPipeline(kind Kind, opts ...PipelineOption) *Pipeline {
	o := defaultOptions(kind)
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{
		Kind:  kind,
		opts:  o,
		cache: cache.New[cacheDesc](o.cacheEntries),
		pool:  parallel.NewWorkerPool(o.workers),
	}
	return p
}

// NewCachedPipeline creates a pipeline whose buffer cache has entries
// slots. minBytes is recorded in the pipeline's options but no slot is
// preallocated to it: each slot's buffer is sized by the Reserve call that
// fills it.
func NewCachedPipeline(kind Kind, entries, minBytes int, opts ...PipelineOption) *Pipeline {
	opts = append([]PipelineOption{WithCacheEntries(entries, minBytes)}, opts...)
	return NewPipeline(kind, opts...)
}

// SetInput installs the source buffer.
func (p *Pipeline) SetInput(imageID uint64, buf *HostBuffer, scale float64) {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()

	p.imageID = imageID
	p.input = buf
	p.inputScale = scale
}

// SetOutputProfile installs the output ICC binding.
func (p *Pipeline) SetOutputProfile(profile OutputProfile) {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	p.outputProfile = profile
}

// Change incorporates the latest edit history using the cheapest rebuild
// class that applies.
func (p *Pipeline) Change(history HistorySource) error {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()

	class := classifyChange(p.history, history, !p.historyBuilt)
	switch class {
	case ChangeRemove:
		if err := p.buildLocked(history); err != nil {
			return err
		}
	case ChangeSynch:
		for _, n := range p.nodes {
			n.resetToDefaults()
		}
		if err := p.replayLocked(history); err != nil {
			return err
		}
	case ChangeTop:
		if history.Len() > 0 {
			item := history.Item(history.Len() - 1)
			if n := p.nodeByName(item.OperatorName); n != nil {
				n.setHistory(item)
				if err := n.commit(p); err != nil {
					return err
				}
			}
		}
	}

	p.history = history
	p.recomputeChainHashesLocked()
	p.recomputeDimensionsLocked()
	return nil
}

// buildLocked clears existing nodes and produces one node per registered
// operator, each at its defaults, then replays history on top. Caller
// holds busyMu.
func (p *Pipeline) buildLocked(history HistorySource) error {
	names := RegisteredOperators()
	nodes := make([]*Node, 0, len(names))
	for i, name := range names {
		op, _ := LookupOperator(name)
		nodes = append(nodes, newNode(i, op))
	}
	p.nodes = nodes
	p.historyBuilt = true
	return p.replayLocked(history)
}

// replayLocked applies each history item's snapshot to its matching node
// and commits it. Caller holds busyMu.
func (p *Pipeline) replayLocked(history HistorySource) error {
	for i := 0; i < history.Len(); i++ {
		item := history.Item(i)
		n := p.nodeByName(item.OperatorName)
		if n == nil {
			continue
		}
		n.setHistory(item)
		if err := n.commit(p); err != nil {
			return err
		}
	}
	// Any node never touched by history still needs its defaults
	// committed at least once.
	for _, n := range p.nodes {
		if err := n.commit(p); err != nil {
			return err
		}
	}
	return nil
}

// recomputeChainHashesLocked folds each node's own CommittedHash with its
// predecessor's ChainHash, walking the chain in order so the source
// node folds from zero. This makes ChainHash — and so the fingerprint
// derived from it — capture every parameter, blend-parameter, or
// enabled change anywhere upstream, not just at the node itself. Caller
// holds busyMu.
func (p *Pipeline) recomputeChainHashesLocked() {
	var pred uint64
	for _, n := range p.nodes {
		n.ChainHash = foldCommittedHash(pred, n.CommittedHash)
		pred = n.ChainHash
	}
}

func (p *Pipeline) nodeByName(name string) *Node {
	for _, n := range p.nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

// recomputeDimensionsLocked recomputes the total processed (width,
// height) by running ModifyROIOut from source downstream. Caller holds
// busyMu.
func (p *Pipeline) recomputeDimensionsLocked() {
	if p.input == nil || len(p.nodes) == 0 {
		return
	}
	roi := ROI{X: 0, Y: 0, Width: p.input.Desc.Width, Height: p.input.Desc.Height, Scale: 1}
	for _, n := range p.nodes {
		if !n.Enabled {
			continue
		}
		roi = n.Operator.ModifyROIOut(n, roi)
	}
	p.width, p.height = roi.Width, roi.Height
}

// Run executes the pipeline for the given output ROI and publishes the
// resulting backbuffer.
func (p *Pipeline) Run(ctx context.Context, x, y, w, h int, scale float64) error {
	roi := ROI{X: x, Y: y, Width: w, Height: h, Scale: scale}

	for attempt := 0; ; attempt++ {
		out, hash, err := p.runOnce(ctx, roi)
		if err == nil {
			p.backbufMu.Lock()
			p.backbuf = out
			p.backbufHash = hash
			p.backbufMu.Unlock()
			return nil
		}
		if fatalToRun(err) && attempt == 0 {
			p.busyMu.Lock()
			p.opts.gpu = false
			p.cache.Flush()
			p.busyMu.Unlock()
			continue // restart once with GPU disabled for this pipeline
		}
		return err
	}
}

// runOnce is one attempt at a run: lock a device (if enabled), clear an
// obsolete cache, snapshot run state, and recurse to the final node.
func (p *Pipeline) runOnce(ctx context.Context, roi ROI) (*HostBuffer, uint64, error) {
	p.busyMu.Lock()
	if p.obsoleteCache {
		p.cache.Flush()
		p.obsoleteCache = false
	}
	if p.shutdown {
		p.busyMu.Unlock()
		return nil, 0, ErrCancelled
	}
	nodes := p.nodes
	p.busyMu.Unlock()

	if len(nodes) == 0 {
		return nil, 0, fmt.Errorf("%w: pipeline has no nodes (call Change first)", ErrInvariant)
	}

	var dev Device
	if p.opts.gpu {
		if d, err := acquireDevice(ctx); err == nil {
			dev = d
			defer d.Close()
		}
	}

	rc := &runContext{
		ctx:    ctx,
		pipe:   p,
		device: dev,
	}

	last := nodes[len(nodes)-1]
	result, err := rc.recurse(last, roi)
	if err != nil {
		return nil, 0, err
	}
	if dev != nil {
		if ferr := dev.Finish(ctx); ferr != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrDeviceLate, ferr)
		}
	}
	return result.host, result.fingerprint, nil
}

// FlushCaches discards every intermediate buffer's fingerprint.
func (p *Pipeline) FlushCaches() {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	p.cache.Flush()
}

// MarkCacheObsolete requests that the cache be cleared at the start of
// the next run.
func (p *Pipeline) MarkCacheObsolete() {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	p.obsoleteCache = true
}

// DisableAfter disables every node after the named operator.
func (p *Pipeline) DisableAfter(name string) {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()

	disable := false
	for _, n := range p.nodes {
		if disable {
			n.Enabled = false
		}
		if n.Name() == name {
			disable = true
		}
	}
}

// SetFocus marks name as the currently focused operator for the
// reweight-on-run behavior; only effective for KindPreview.
func (p *Pipeline) SetFocus(name string) {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	for _, n := range p.nodes {
		n.Focused = n.Name() == name
	}
}

// SetNaNGuard enables or disables the NaN guard.
func (p *Pipeline) SetNaNGuard(enabled bool) {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	p.naNGuard = enabled
}

// Backbuffer returns the last published output and its fingerprint hash.
func (p *Pipeline) Backbuffer() (*HostBuffer, uint64) {
	p.backbufMu.Lock()
	defer p.backbufMu.Unlock()
	return p.backbuf, p.backbufHash
}

// Cleanup signals shutdown, tears down nodes, the cache, and the worker
// pool. Safe to call while a run may be in flight: it waits on busyMu
// before freeing, so it always observes a quiescent graph.
func (p *Pipeline) Cleanup() {
	p.busyMu.Lock()
	p.shutdown = true
	p.nodes = nil
	p.cache.Flush()
	p.busyMu.Unlock()

	p.pool.Close()

	p.backbufMu.Lock()
	p.backbuf = nil
	p.backbufMu.Unlock()
}

// isShutdown is a cancellation predicate: the per-pipeline shutdown flag
// set by Cleanup.
func (p *Pipeline) isShutdown() bool {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	return p.shutdown
}
