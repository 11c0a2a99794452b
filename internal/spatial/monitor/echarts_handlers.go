package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/haunt.report/internal/httputil"
	"github.com/banshee-data/haunt.report/internal/spatial/storage/sqlite"
)

// handleCountsChart renders live entity counts for a session as an HTML
// line chart. This is a debugging-only endpoint.
// Query params:
//   - session_id (optional; defaults to the most recent session)
//   - limit (optional, default 500, max 5000)
func (ws *WebServer) handleCountsChart(w http.ResponseWriter, r *http.Request) {
	id, samples, ok := ws.sessionSamples(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := countsPage(id, samples).Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// sessionSamples resolves the session_id query param (defaulting to the most
// recent session) and loads its samples. It writes the error response itself
// and returns false when there is nothing to draw.
func (ws *WebServer) sessionSamples(w http.ResponseWriter, r *http.Request) (string, []*sqlite.Sample, bool) {
	if ws.store == nil {
		httputil.NotFound(w, "telemetry store not configured")
		return "", nil, false
	}
	id := r.URL.Query().Get("session_id")
	if id == "" {
		sessions, err := ws.store.ListSessions(r.Context(), 1)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return "", nil, false
		}
		if len(sessions) == 0 {
			httputil.NotFound(w, "no sessions recorded")
			return "", nil, false
		}
		id = sessions[0].SessionID
	}

	samples, err := ws.store.Samples(r.Context(), id, queryLimit(r, 500, 5000))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return "", nil, false
	}
	if len(samples) == 0 {
		httputil.NotFound(w, "no samples for session")
		return "", nil, false
	}
	return id, samples, true
}

func countsPage(sessionID string, samples []*sqlite.Sample) *components.Page {
	x := make([]string, 0, len(samples))
	surfaces := make([]opts.LineData, 0, len(samples))
	meshes := make([]opts.LineData, 0, len(samples))
	decorations := make([]opts.LineData, 0, len(samples))
	p95 := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, time.Unix(0, s.SampledAt).UTC().Format("15:04:05"))
		surfaces = append(surfaces, opts.LineData{Value: s.Surfaces})
		meshes = append(meshes, opts.LineData{Value: s.Meshes})
		decorations = append(decorations, opts.LineData{Value: s.Decorations})
		p95 = append(p95, opts.LineData{Value: s.ConvertP95Micros})
	}

	counts := charts.NewLine()
	counts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scene counts", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Live entities", Subtitle: fmt.Sprintf("session=%s samples=%d", sessionID, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	counts.SetXAxis(x).
		AddSeries("surfaces", surfaces).
		AddSeries("meshes", meshes).
		AddSeries("decorations", decorations).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	latency := charts.NewLine()
	latency.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Conversion p95", Subtitle: "microseconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	latency.SetXAxis(x).AddSeries("convert p95 (us)", p95)

	page := components.NewPage()
	page.AddCharts(counts, latency)
	return page
}
