package pixelpipe

import (
	"context"
	"sync/atomic"
	"testing"
)

// testSource is a minimal decoder-tagged operator defined in-package (not
// internal/fixtures, to avoid an import cycle: fixtures imports this
// package, so this package's own tests can't import fixtures back).
type testSource struct{}

func (testSource) Descriptor() OperatorDescriptor {
	return OperatorDescriptor{Name: "test.0_source", Tags: TagDecoder, DefaultEnabled: true}
}
func (testSource) OutputFormat(n *Node, in BufferDescriptor) BufferDescriptor { return in }
func (testSource) ModifyROIIn(n *Node, roiOut ROI) ROI                       { return roiOut }
func (testSource) ModifyROIOut(n *Node, roiIn ROI) ROI                       { return roiIn }
func (testSource) Commit(n *Node, p *Pipeline) error                         { return nil }
func (testSource) Process(n *Node, in, out *HostBuffer, roiIn, roiOut ROI) error {
	copy(out.Data, in.Data)
	return nil
}
func (testSource) TilingCallback(n *Node, roiIn, roiOut ROI) TilingEstimate {
	return TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// testIdentity passes its input through unchanged.
type testIdentity struct{ name string }

func (t testIdentity) Descriptor() OperatorDescriptor {
	return OperatorDescriptor{Name: t.name, DefaultEnabled: true}
}
func (t testIdentity) OutputFormat(n *Node, in BufferDescriptor) BufferDescriptor { return in }
func (t testIdentity) ModifyROIIn(n *Node, roiOut ROI) ROI                       { return roiOut }
func (t testIdentity) ModifyROIOut(n *Node, roiIn ROI) ROI                       { return roiIn }
func (t testIdentity) Commit(n *Node, p *Pipeline) error                         { return nil }
func (t testIdentity) Process(n *Node, in, out *HostBuffer, roiIn, roiOut ROI) error {
	copy(out.Data, in.Data)
	return nil
}
func (t testIdentity) TilingCallback(n *Node, roiIn, roiOut ROI) TilingEstimate {
	return TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// testCrop shrinks its requested input ROI by a fixed margin, exercising
// backward ROI propagation.
type testCrop struct{ margin int }

func (c testCrop) Descriptor() OperatorDescriptor {
	return OperatorDescriptor{Name: "test.1_crop", DefaultEnabled: true}
}
func (c testCrop) OutputFormat(n *Node, in BufferDescriptor) BufferDescriptor { return in }
func (c testCrop) ModifyROIIn(n *Node, roiOut ROI) ROI {
	r := roiOut
	r.Width -= c.margin
	r.Height -= c.margin
	if r.Width < 1 {
		r.Width = 1
	}
	if r.Height < 1 {
		r.Height = 1
	}
	return r
}
func (c testCrop) ModifyROIOut(n *Node, roiIn ROI) ROI {
	r := roiIn
	r.Width += c.margin
	r.Height += c.margin
	return r
}
func (c testCrop) Commit(n *Node, p *Pipeline) error { return nil }
func (c testCrop) Process(n *Node, in, out *HostBuffer, roiIn, roiOut ROI) error {
	copy(out.Data, in.Data)
	return nil
}
func (c testCrop) TilingCallback(n *Node, roiIn, roiOut ROI) TilingEstimate {
	return TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// testCLOnly counts Process calls, used to check the cache actually
// avoids redundant recomputation across repeated runs.
type testCLOnly struct{ calls atomic.Int64 }

func (t *testCLOnly) Descriptor() OperatorDescriptor {
	return OperatorDescriptor{Name: "test.1_cl_only", DefaultEnabled: true}
}
func (t *testCLOnly) OutputFormat(n *Node, in BufferDescriptor) BufferDescriptor { return in }
func (t *testCLOnly) ModifyROIIn(n *Node, roiOut ROI) ROI                       { return roiOut }
func (t *testCLOnly) ModifyROIOut(n *Node, roiIn ROI) ROI                       { return roiIn }
func (t *testCLOnly) Commit(n *Node, p *Pipeline) error                         { return nil }
func (t *testCLOnly) Process(n *Node, in, out *HostBuffer, roiIn, roiOut ROI) error {
	t.calls.Add(1)
	copy(out.Data, in.Data)
	return nil
}
func (t *testCLOnly) TilingCallback(n *Node, roiIn, roiOut ROI) TilingEstimate {
	return TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

func freshRegistry(t *testing.T, ops ...Operator) {
	t.Helper()
	unregisterAllOperators()
	for _, op := range ops {
		RegisterOperator(op)
	}
	t.Cleanup(unregisterAllOperators)
}

func solidInput(w, h int, v float32) *HostBuffer {
	desc := BufferDescriptor{Width: w, Height: h, Channels: 4, Datatype: Float32}
	buf := &HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}
	for i := 0; i+4 <= len(buf.Data); i += 4 {
		writeFloat32(buf.Data[i:i+4], v)
	}
	return buf
}

func TestRunProducesFingerprintedOutput(t *testing.T) {
	freshRegistry(t, testSource{}, testIdentity{name: "test.1_identity"})

	p := NewPipeline(KindPreview, WithGPU(false))
	p.SetInput(1, solidInput(8, 8, 0.5), 1)
	if err := p.Change(SliceHistory{}); err != nil {
		t.Fatalf("Change: %v", err)
	}

	if err := p.Run(context.Background(), 0, 0, 8, 8, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, hash := p.Backbuffer()
	if out == nil {
		t.Fatal("Backbuffer returned nil output")
	}
	if hash == 0 {
		t.Error("fingerprint hash should not be zero")
	}
}

func TestFingerprintStableAcrossIdenticalRuns(t *testing.T) {
	freshRegistry(t, testSource{}, testIdentity{name: "test.1_identity"})

	p := NewPipeline(KindPreview, WithGPU(false))
	p.SetInput(1, solidInput(8, 8, 0.5), 1)
	if err := p.Change(SliceHistory{}); err != nil {
		t.Fatalf("Change: %v", err)
	}

	if err := p.Run(context.Background(), 0, 0, 8, 8, 1); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	_, hash1 := p.Backbuffer()

	if err := p.Run(context.Background(), 0, 0, 8, 8, 1); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	_, hash2 := p.Backbuffer()

	if hash1 != hash2 {
		t.Errorf("fingerprint changed across identical runs: %x != %x", hash1, hash2)
	}
}

func TestFingerprintChangesWithParams(t *testing.T) {
	freshRegistry(t, testSource{}, testIdentity{name: "test.1_identity"})

	p := NewPipeline(KindPreview, WithGPU(false))
	p.SetInput(1, solidInput(8, 8, 0.5), 1)

	if err := p.Change(SliceHistory{}); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if err := p.Run(context.Background(), 0, 0, 8, 8, 1); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	_, hash1 := p.Backbuffer()

	history := SliceHistory{{OperatorName: "test.1_identity", ParamsBlob: []byte{1, 2, 3}, Enabled: true}}
	if err := p.Change(history); err != nil {
		t.Fatalf("Change 2: %v", err)
	}
	if err := p.Run(context.Background(), 0, 0, 8, 8, 1); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	_, hash2 := p.Backbuffer()

	if hash1 == hash2 {
		t.Error("fingerprint did not change after a node's params changed")
	}
}

func TestROIPropagationThroughCrop(t *testing.T) {
	freshRegistry(t, testSource{}, testCrop{margin: 2})

	p := NewPipeline(KindPreview, WithGPU(false))
	p.SetInput(1, solidInput(16, 16, 0.25), 1)
	if err := p.Change(SliceHistory{}); err != nil {
		t.Fatalf("Change: %v", err)
	}

	if err := p.Run(context.Background(), 0, 0, 10, 10, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, _ := p.Backbuffer()
	if out.Desc.Width != 10 || out.Desc.Height != 10 {
		t.Errorf("expected 10x10 output, got %dx%d", out.Desc.Width, out.Desc.Height)
	}
}

func TestRunCancelledAfterCleanup(t *testing.T) {
	freshRegistry(t, testSource{}, testIdentity{name: "test.1_identity"})

	p := NewPipeline(KindPreview, WithGPU(false))
	p.SetInput(1, solidInput(4, 4, 0.1), 1)
	if err := p.Change(SliceHistory{}); err != nil {
		t.Fatalf("Change: %v", err)
	}
	p.Cleanup()

	err := p.Run(context.Background(), 0, 0, 4, 4, 1)
	if err == nil {
		t.Fatal("expected Run to fail after Cleanup")
	}
}

func TestMarkCacheObsoleteForcesRecompute(t *testing.T) {
	op := &testCLOnly{}
	freshRegistry(t, testSource{}, op)

	p := NewPipeline(KindPreview, WithGPU(false))
	p.SetInput(1, solidInput(4, 4, 0.3), 1)
	if err := p.Change(SliceHistory{}); err != nil {
		t.Fatalf("Change: %v", err)
	}

	if err := p.Run(context.Background(), 0, 0, 4, 4, 1); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	if err := p.Run(context.Background(), 0, 0, 4, 4, 1); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	if got := op.calls.Load(); got != 1 {
		t.Errorf("Process calls after two identical runs = %d, want 1 (second run should hit the cache)", got)
	}

	p.MarkCacheObsolete()
	if err := p.Run(context.Background(), 0, 0, 4, 4, 1); err != nil {
		t.Fatalf("Run 3: %v", err)
	}
	if got := op.calls.Load(); got != 2 {
		t.Errorf("Process calls after MarkCacheObsolete = %d, want 2", got)
	}
}

func TestChangeClassification(t *testing.T) {
	a := SliceHistory{{OperatorName: "x", Enabled: true}}
	b := SliceHistory{{OperatorName: "x", Enabled: true}}
	if class := classifyChange(a, b, false); class != ChangeTop {
		t.Errorf("expected ChangeTop for identical single-item histories, got %v", class)
	}

	c := SliceHistory{{OperatorName: "x", Enabled: false}}
	if class := classifyChange(a, c, false); class != ChangeTop {
		t.Errorf("expected ChangeTop when only the last item's enabled flag differs, got %v", class)
	}

	if class := classifyChange(nil, a, false); class != ChangeRemove {
		t.Errorf("expected ChangeRemove with a nil previous history, got %v", class)
	}
}

func TestDeviceFailureThresholdDisablesGPU(t *testing.T) {
	resetDeviceFailures()
	t.Cleanup(resetDeviceFailures)

	for i := 0; i < deviceErrorThreshold-1; i++ {
		if disable := recordDeviceFailure(); disable {
			t.Fatalf("GPU disabled after only %d failures", i+1)
		}
	}
	if disable := recordDeviceFailure(); !disable {
		t.Errorf("expected GPU to be disabled after %d failures", deviceErrorThreshold)
	}
}
