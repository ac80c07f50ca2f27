package dashboard

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Chart names served by the dashboard
const (
	ChartDelays     = "delays"
	ChartTimeDeltas = "time-deltas"
)

// ErrUnknownChart is returned by Chart for an unknown name
var ErrUnknownChart = fmt.Errorf("%w: unknown chart", ErrInvalidFilter)

// Chart renders the named histogram as a PNG image
func (a *Analysis) Chart(name, checkinType string) ([]byte, error) {
	d, err := a.Delays(checkinType, 0)
	if err != nil {
		return nil, err
	}
	switch name {
	case ChartDelays:
		return renderHistogram(d.Delay, "Delays at checkout (minutes)", "delay_at_checkout_in_minutes")
	case ChartTimeDeltas:
		return renderHistogram(d.PlannedDelta, "Planned time delta with previous rental (< 12 hours)", "time_delta_with_previous_rental_in_minutes")
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownChart, name)
}

func renderHistogram(h Histogram, title, xLabel string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "count"
	p.X.Min, p.X.Max = h.Min, h.Max

	bins := make([]plotter.HistogramBin, len(h.Bins))
	for i, b := range h.Bins {
		bins[i] = plotter.HistogramBin{Min: b.Lo, Max: b.Hi, Weight: float64(b.Count)}
	}
	hist := &plotter.Histogram{
		Bins:      bins,
		FillColor: color.RGBA{R: 99, G: 110, B: 250, A: 255},
		LineStyle: plotter.DefaultLineStyle,
	}
	if len(bins) > 0 {
		hist.Width = bins[0].Max - bins[0].Min
	}
	p.Add(hist)

	w, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
