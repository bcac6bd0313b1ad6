// Command pipecheck builds a pipeline from a JSON-described history and a
// synthetic test image, runs it, and prints the resulting fingerprint and
// any NaN-guard findings. It exists to exercise the pixelpipe library
// end-to-end without a real raw decoder or GUI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/rawforge/pixelpipe"
	"github.com/rawforge/pixelpipe/internal/fixtures"
)

// historyItem is one element of the on-disk shape of -history: a flat
// JSON array of history items, applied in order.
type historyItem struct {
	Operator string          `json:"operator"`
	Params   json.RawMessage `json:"params,omitempty"`
	Blend    json.RawMessage `json:"blend,omitempty"`
	Enabled  bool            `json:"enabled"`
}

func main() {
	var (
		historyPath = flag.String("history", "", "path to a JSON array of history items (omit for defaults)")
		width       = flag.Int("width", 64, "synthetic source image width")
		height      = flag.Int("height", 64, "synthetic source image height")
		cell        = flag.Int("cell", 8, "checkerboard cell size")
		kind        = flag.String("kind", "preview", "pipeline kind: full, preview, thumbnail, export")
	)
	flag.Parse()

	fixtures.Register()

	history := pixelpipe.SliceHistory{}
	if *historyPath != "" {
		data, err := os.ReadFile(*historyPath)
		if err != nil {
			log.Fatalf("pipecheck: read history: %v", err)
		}
		var items []historyItem
		if err := json.Unmarshal(data, &items); err != nil {
			log.Fatalf("pipecheck: parse history: %v", err)
		}
		for _, it := range items {
			history = append(history, pixelpipe.HistoryItem{
				OperatorName:    it.Operator,
				ParamsBlob:      []byte(it.Params),
				BlendParamsBlob: []byte(it.Blend),
				Enabled:         it.Enabled,
			})
		}
	}

	pixelpipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	p := pixelpipe.NewPipeline(parseKind(*kind), pixelpipe.WithGPU(false))
	p.SetNaNGuard(true)
	p.SetInput(1, pixelpipe.CheckerboardFixture(*width, *height, *cell), 1)
	if err := p.Change(history); err != nil {
		log.Fatalf("pipecheck: change: %v", err)
	}

	if err := p.Run(context.Background(), 0, 0, *width, *height, 1); err != nil {
		log.Fatalf("pipecheck: run: %v", err)
	}

	out, hash := p.Backbuffer()
	log.Printf("fingerprint=%#x output=%dx%d channels=%d", hash, out.Desc.Width, out.Desc.Height, out.Desc.Channels)

	p.Cleanup()
}

func parseKind(s string) pixelpipe.Kind {
	switch s {
	case "full":
		return pixelpipe.KindFull
	case "thumbnail":
		return pixelpipe.KindThumbnail
	case "export":
		return pixelpipe.KindExport
	default:
		return pixelpipe.KindPreview
	}
}
