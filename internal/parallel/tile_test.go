package parallel

import "testing"

func TestNewGrid(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		cols, rows int
	}{
		{"exact multiple", 128, 128, 2, 2},
		{"ragged edge", 100, 70, 2, 2},
		{"single tile", 10, 10, 1, 1},
		{"wide", 200, 10, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(tt.w, tt.h)
			if g.Cols != tt.cols || g.Rows != tt.rows {
				t.Errorf("NewGrid(%d,%d) = cols=%d rows=%d, want cols=%d rows=%d",
					tt.w, tt.h, g.Cols, g.Rows, tt.cols, tt.rows)
			}
		})
	}
}

func TestGridTileBoundsClampsEdges(t *testing.T) {
	g := NewGrid(100, 70)
	x, y, w, h := g.TileBounds(1, 1)
	if x != 64 || y != 64 {
		t.Fatalf("TileBounds(1,1) origin = (%d,%d), want (64,64)", x, y)
	}
	if w != 36 || h != 6 {
		t.Fatalf("TileBounds(1,1) size = (%d,%d), want (36,6)", w, h)
	}
}

func TestTilePixelOffset(t *testing.T) {
	tile := NewTile(0, 0, 4, 4, 4)
	if off := tile.PixelOffset(1, 1); off != (1*4+1)*4 {
		t.Errorf("PixelOffset(1,1) = %d, want %d", off, (1*4+1)*4)
	}
	if off := tile.PixelOffset(-1, 0); off != -1 {
		t.Errorf("PixelOffset out of bounds = %d, want -1", off)
	}
	if off := tile.PixelOffset(4, 0); off != -1 {
		t.Errorf("PixelOffset out of bounds = %d, want -1", off)
	}
}

func TestTileBufferPixelOffset(t *testing.T) {
	tile := &Tile{X: 1, Y: 2, Width: 64, Height: 64, BytesPerPixel: 4}
	tile.Data = make([]byte, tile.ByteSize())

	// tile origin is (64, 128) in buffer space
	if off := tile.BufferPixelOffset(64, 128); off != 0 {
		t.Errorf("BufferPixelOffset at tile origin = %d, want 0", off)
	}
	if off := tile.BufferPixelOffset(0, 0); off != -1 {
		t.Errorf("BufferPixelOffset outside tile = %d, want -1", off)
	}
}

func TestTileResetClearsData(t *testing.T) {
	tile := NewTile(0, 0, 2, 2, 4)
	for i := range tile.Data {
		tile.Data[i] = 0xff
	}
	tile.Reset()
	for i, b := range tile.Data {
		if b != 0 {
			t.Fatalf("Data[%d] = %d after Reset, want 0", i, b)
		}
	}
}
