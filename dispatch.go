package pixelpipe

import (
	"context"
	"math"
)

// runContext carries the state shared across one recurse tree: the
// pipeline being run, the active device (nil if GPU is not in play for
// this run), and the request context used for cancellation checks.
type runContext struct {
	ctx    context.Context
	pipe   *Pipeline
	device Device
}

// nodeResult is what recurse returns for a node: its output, either
// resident on host or still on device, plus the fingerprint it was
// cached (or would be cached) under.
type nodeResult struct {
	host        *HostBuffer
	device      *DeviceBuffer
	fingerprint uint64
}

// onHost forces result into host memory, downloading from device if
// necessary. A download failure is DeviceLate: fatal to the run.
func (rc *runContext) onHost(r nodeResult) (*HostBuffer, error) {
	if r.host != nil {
		return r.host, nil
	}
	if r.device == nil || rc.device == nil {
		return nil, ErrHostOOM
	}
	buf := &HostBuffer{Desc: r.device.Desc, Data: make([]byte, r.device.Desc.ByteSize())}
	if err := rc.device.Read(rc.ctx, r.device, buf.Data); err != nil {
		rc.device.Release(r.device)
		return nil, joinErr(ErrDeviceLate, err)
	}
	rc.device.Release(r.device)
	return buf, nil
}

// recurse runs the execute sequence for node at output roiOut: resolve
// the predecessor's ROI, fetch or compute its input, dispatch to device
// or host, blend, and cache the result.
func (rc *runContext) recurse(node *Node, roiOut ROI) (nodeResult, error) {
	p := rc.pipe

	// (a) Disabled or filtered out: pass through to the predecessor
	// unchanged.
	if !node.Enabled {
		pred := rc.predecessor(node)
		if pred == nil {
			return nodeResult{}, joinErr(ErrInvariant, nil)
		}
		return rc.recurse(pred, roiOut)
	}

	p.busyMu.Lock()
	chainHash := node.ChainHash
	imageID := p.imageID
	kind := p.Kind
	p.busyMu.Unlock()

	// (b) Fingerprint and cache lookup.
	fp := fingerprint(imageID, roiOut, kind, node.Position, chainHash)
	if entry, ok := p.cache.Lookup(fp); ok {
		return nodeResult{host: &HostBuffer{Desc: entry.Descriptor.Buffer, Data: entry.Buffer}, fingerprint: fp}, nil
	}

	// (c) Cancellation check.
	if rc.cancelled() {
		return nodeResult{}, ErrCancelled
	}

	pred := rc.predecessor(node)

	// (d) Source node.
	if pred == nil {
		return rc.recurseSource(node, roiOut, fp)
	}

	// (e) Ask the operator for roi_in, recurse to the predecessor.
	roiIn := node.Operator.ModifyROIIn(node, roiOut)
	inResult, err := rc.recurse(pred, roiIn)
	if err != nil {
		return nodeResult{}, err
	}

	if rc.cancelled() {
		rc.releaseResult(inResult)
		return nodeResult{}, ErrCancelled
	}

	return rc.processNode(node, inResult, roiIn, roiOut, fp)
}

// recurseSource implements step (d): copy/resize the input into a fresh
// cache slot. An identity ROI at scale 1 skips cropAndScale and copies the
// input bytes straight into the slot; the input buffer itself is never
// shared with the cache.
func (rc *runContext) recurseSource(node *Node, roiOut ROI, fp uint64) (nodeResult, error) {
	p := rc.pipe

	p.busyMu.Lock()
	in := p.input
	p.busyMu.Unlock()

	if in == nil {
		return nodeResult{}, joinErr(ErrInvariant, nil)
	}

	if roiOut.Identity(in.Desc.Width, in.Desc.Height) {
		entry, _ := p.cache.Reserve(fp, len(in.Data), cacheDesc{Buffer: in.Desc})
		copy(entry.Buffer, in.Data)
		return nodeResult{host: &HostBuffer{Desc: in.Desc, Data: entry.Buffer}, fingerprint: fp}, nil
	}

	out := cropAndScale(in, roiOut)
	entry, _ := p.cache.Reserve(fp, len(out.Data), cacheDesc{Buffer: out.Desc})
	copy(entry.Buffer, out.Data)
	return nodeResult{host: &HostBuffer{Desc: out.Desc, Data: entry.Buffer}, fingerprint: fp}, nil
}

// processNode implements steps (f)-(j) once the predecessor's result is
// in hand.
func (rc *runContext) processNode(node *Node, inResult nodeResult, roiIn, roiOut ROI, fp uint64) (nodeResult, error) {
	p := rc.pipe

	inHost, err := rc.onHost(inResult)
	if err != nil {
		return nodeResult{}, err
	}

	outDesc := node.Operator.OutputFormat(node, inHost.Desc)
	important := node.Descriptor().Tags.Has(TagDecoder) == false && p.isFinalNode(node)

	// (f) Mask-display short-circuit: never for distorting operators,
	// and only when the format is unchanged.
	if node.MaskDisplay && !node.Descriptor().Tags.Has(TagDistorts) && sameFormat(inHost.Desc, outDesc) {
		entry, _ := p.cache.Reserve(fp, inHost.Desc.ByteSize(), cacheDesc{Buffer: inHost.Desc})
		copy(entry.Buffer, inHost.Data)
		if important {
			p.cache.MarkImportant(fp)
		}
		node.MaskDisplay = false
		return nodeResult{host: &HostBuffer{Desc: inHost.Desc, Data: entry.Buffer}, fingerprint: fp}, nil
	}

	wasFull := p.cache.Len() >= p.cache.Capacity()
	entry, hit := p.cache.Reserve(fp, outDesc.ByteSize(), cacheDesc{Buffer: outDesc})
	out := &HostBuffer{Desc: outDesc, Data: entry.Buffer}
	if !hit && wasFull {
		Logger().Debug(cacheEvictionNotice(fp, outDesc.ByteSize(), p.cache.Len(), p.cache.Capacity()))
	}

	// (g) Path selection. Device dispatch is attempted only when the
	// node reports CLReady and a live device has room; everything else
	// runs on CPU, tiled when the operator supports it and direct
	// otherwise.
	ran := false
	previewCPUOnly := p.Kind == KindPreview && node.Descriptor().Tags.Has(TagPreviewOnlyCPU)
	if rc.device != nil && node.CLReady && !previewCPUOnly {
		if dop, ok := node.Operator.(DeviceOperator); ok {
			est := node.Operator.TilingCallback(node, roiIn, roiOut)
			if rc.device.Fits(est.MaxBuf) {
				ok, derr := rc.runDevice(dop, node, inHost, out, roiIn, roiOut)
				if derr != nil {
					return nodeResult{}, derr
				}
				ran = ok
				if !ran {
					if disable := recordDeviceFailure(); disable {
						rc.device = nil
					}
				}
			}
		}
	}
	if !ran {
		if err := rc.runCPU(node, inHost, out, roiIn, roiOut); err != nil {
			return nodeResult{}, err
		}
	}

	if p.naNGuard {
		scanForNaN(node.Name(), out)
	}

	// (h) Histogram / picker collection.
	if node.HistogramRequest && p.Kind.waveformLive() {
		collectNodeHistogram(node, out)
	}

	// (i) Blend step.
	if len(node.BlendParamsBlob) > 0 && sameFormat(inHost.Desc, outDesc) {
		mask := decodeBlendMask(node.BlendParamsBlob, outDesc)
		blendBuffers(out, out, inHost, mask)
	}

	if important {
		p.cache.MarkImportant(fp)
	}

	// (j) Reweight the focused node's input on every run so interactive
	// edits stay responsive, only meaningful for the preview kind.
	if node.Focused && p.Kind == KindPreview {
		p.cache.Reweight(inResult.fingerprint)
	}

	return nodeResult{host: out, fingerprint: fp}, nil
}

// runCPU dispatches to the tiled or direct CPU path, handing the
// pipeline's shared worker pool to the tiled path so an operator's
// parallel-for across rows or tiles actually runs on it rather than
// spinning up its own goroutines.
func (rc *runContext) runCPU(node *Node, in, out *HostBuffer, roiIn, roiOut ROI) error {
	if top, ok := node.Operator.(TilingOperator); ok && node.TilingReady {
		return top.ProcessTiling(node, in, out, roiIn, roiOut, in.Desc.BytesPerPixel(), rc.pipe.pool)
	}
	return node.Operator.Process(node, in, out, roiIn, roiOut)
}

// runDevice dispatches the GPU path, falling back to CPU on anticipated
// device failure and treating a copy-back failure as fatal (DeviceLate).
func (rc *runContext) runDevice(dop DeviceOperator, node *Node, in, out *HostBuffer, roiIn, roiOut ROI) (ran bool, err error) {
	devIn, aerr := rc.device.Alloc(rc.ctx, int64(len(in.Data)), in.Desc)
	if aerr != nil {
		return false, nil // DeviceOOM: fall back to CPU for this node
	}
	defer rc.device.Release(devIn)

	if werr := rc.device.Write(rc.ctx, devIn, in.Data); werr != nil {
		return false, nil
	}

	devOut, aerr := rc.device.Alloc(rc.ctx, int64(len(out.Data)), out.Desc)
	if aerr != nil {
		return false, nil
	}
	defer rc.device.Release(devOut)

	ok, perr := dop.ProcessCL(node, devIn, devOut, roiIn, roiOut)
	if perr != nil || !ok {
		return false, nil // DeviceTransient: fall back to CPU
	}

	if rerr := rc.device.Read(rc.ctx, devOut, out.Data); rerr != nil {
		return false, joinErr(ErrDeviceLate, rerr)
	}
	return true, nil
}

// predecessor returns node's upstream neighbor in the pipeline's chain,
// or nil if node is the source.
func (rc *runContext) predecessor(node *Node) *Node {
	if node.Position == 0 {
		return nil
	}
	p := rc.pipe
	for _, n := range p.nodes {
		if n.Position == node.Position-1 {
			return n
		}
	}
	return nil
}

func (p *Pipeline) isFinalNode(node *Node) bool {
	return len(p.nodes) > 0 && node.Position == p.nodes[len(p.nodes)-1].Position
}

// cancelled evaluates the cancellation predicates for the current run.
func (rc *runContext) cancelled() bool {
	if rc.pipe.isShutdown() {
		return true
	}
	select {
	case <-rc.ctx.Done():
		return true
	default:
		return false
	}
}

// releaseResult frees any device-resident buffer still held by an
// abandoned result on a cancellation unwind.
func (rc *runContext) releaseResult(r nodeResult) {
	if r.device != nil && rc.device != nil {
		rc.device.Release(r.device)
	}
}

// cropAndScale produces a host buffer for roiOut cropped (and, if
// scale != 1, resampled) from in. Resampling itself belongs to the
// decoder/interpolation operator in a full system; the driver's source
// step here only needs nearest-neighbor sampling to materialize a
// correctly shaped buffer for the cache.
func cropAndScale(in *HostBuffer, roiOut ROI) *HostBuffer {
	desc := in.Desc
	desc.Width, desc.Height = roiOut.Width, roiOut.Height
	out := &HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}

	bpp := desc.BytesPerPixel()
	srcW, srcH := in.Desc.Width, in.Desc.Height
	invScale := 1.0
	if roiOut.Scale > 0 {
		invScale = 1.0 / roiOut.Scale
	}

	for y := 0; y < roiOut.Height; y++ {
		sy := roiOut.Y + int(float64(y)*invScale)
		if sy >= srcH {
			sy = srcH - 1
		}
		for x := 0; x < roiOut.Width; x++ {
			sx := roiOut.X + int(float64(x)*invScale)
			if sx >= srcW {
				sx = srcW - 1
			}
			si := (sy*srcW + sx) * bpp
			di := (y*roiOut.Width + x) * bpp
			copy(out.Data[di:di+bpp], in.Data[si:si+bpp])
		}
	}
	return out
}

func sameFormat(a, b BufferDescriptor) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Channels == b.Channels && a.Datatype == b.Datatype
}

// decodeBlendMask is a placeholder decode for the blend parameter blob:
// a uniform mask of length pixels, currently either fully opaque (no
// masking requested, len(blob) == 0 handled by the caller) or the first
// float32 of blob broadcast to every pixel. A full implementation would
// decode per-pixel raster or parametric masks; that machinery belongs to
// the masking subsystem and is out of scope here.
func decodeBlendMask(blob []byte, desc BufferDescriptor) []float32 {
	if len(blob) < 4 {
		return nil
	}
	w := readFloat32(blob[:4])
	mask := make([]float32, desc.Width*desc.Height)
	for i := range mask {
		mask[i] = w
	}
	return mask
}

// scanForNaN implements the NaN guard: it never mutates out.Data.
func scanForNaN(opName string, out *HostBuffer) {
	if out.Desc.Datatype != Float32 {
		return
	}
	report := NaNGuardReport{NodeName: opName, Width: out.Desc.Width, Height: out.Desc.Height}
	bpp := out.Desc.BytesPerPixel()
	stride := out.Desc.Width * bpp
	for i := 0; i+4 <= len(out.Data); i += 4 {
		v := readFloat32(out.Data[i : i+4])
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			if report.BadCount == 0 {
				report.FirstBadX = (i % stride) / bpp
				report.FirstBadY = i / stride
			}
			report.BadCount++
		}
	}
	if report.BadCount > 0 {
		Logger().Warn(report.String())
	}
}

// collectNodeHistogram is the driver's histogram hook, called for nodes
// with HistogramRequest set in the preview kind. It is a no-op: it is
// unexported, nothing in the module assigns it, and the sampler package
// (which imports pixelpipe's exported types) is not called from here.
var collectNodeHistogram = func(node *Node, out *HostBuffer) {}

// joinErr wraps a sentinel with an optional underlying cause, omitting
// the ": <nil>" suffix fmt.Errorf would otherwise produce.
func joinErr(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &wrappedErr{sentinel: sentinel, cause: cause}
}

type wrappedErr struct {
	sentinel error
	cause    error
}

func (e *wrappedErr) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *wrappedErr) Unwrap() error { return e.sentinel }
