package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/haunt.report/internal/httputil"
	"github.com/banshee-data/haunt.report/internal/spatial/storage/sqlite"
)

var seriesColors = []color.Color{
	color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff},
	color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff},
	color.RGBA{R: 0xfd, G: 0x7e, B: 0x25, A: 0xff},
}

// handleCountsPNG renders the same series as /debug/counts as a static PNG,
// for embedding in reports without javascript.
func (ws *WebServer) handleCountsPNG(w http.ResponseWriter, r *http.Request) {
	id, samples, ok := ws.sessionSamples(w, r)
	if !ok {
		return
	}
	p, err := countsPlot(id, samples)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

func countsPlot(sessionID string, samples []*sqlite.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Live entities (session %s)", sessionID)
	p.X.Label.Text = "Seconds since first sample"
	p.Y.Label.Text = "Count"

	start := samples[0].SampledAt
	series := []struct {
		name  string
		value func(s *sqlite.Sample) int
	}{
		{"surfaces", func(s *sqlite.Sample) int { return s.Surfaces }},
		{"meshes", func(s *sqlite.Sample) int { return s.Meshes }},
		{"decorations", func(s *sqlite.Sample) int { return s.Decorations }},
	}
	for i, sr := range series {
		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			pts = append(pts, plotter.XY{X: float64(s.SampledAt-start) / 1e9, Y: float64(sr.value(s))})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = seriesColors[i%len(seriesColors)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(sr.name, line)
	}
	return p, nil
}
