package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"flowstore/internal/storage"
	"flowstore/internal/symbols"
	"flowstore/internal/timeseries"
)

// Export renders quote history for one symbol as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repos, err := a.buildRepos(pool, nil)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	w := timeseries.Window{
		From:    from,
		To:      to,
		Symbols: symbols.Expand(opts.Symbol),
	}
	quotes, err := repos.Quotes.List(ctx, w, false)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		a.Logger.Info().Str("symbol", opts.Symbol).Msg("no quotes found for export window")
		return nil
	}

	downsampled := downsampleQuotes(quotes, opts.MaxPoints)
	a.Logger.Info().
		Str("symbol", opts.Symbol).
		Int("total", len(quotes)).
		Int("exported", len(downsampled)).
		Msg("exporting quotes")

	if opts.CSVPath != "" {
		if err := writeQuotesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeQuotesPNG(opts.PNGPath, opts.Symbol, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleQuotes(quotes []storage.QuoteEvent, max int) []storage.QuoteEvent {
	if max <= 0 || len(quotes) <= max {
		return quotes
	}

	result := make([]storage.QuoteEvent, 0, max)
	step := float64(len(quotes)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(quotes) {
			idx = len(quotes) - 1
		}
		result = append(result, quotes[idx])
	}
	return result
}

func writeQuotesCSV(path string, quotes []storage.QuoteEvent) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_on", "symbol", "event_type", "bid_price", "mid_price", "ask_price", "last_price", "last_size"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, q := range quotes {
		record := []string{
			q.CreatedOn.Format(time.RFC3339),
			q.Symbol,
			string(q.EventType),
			q.BidPrice.String(),
			q.MidPrice.String(),
			q.AskPrice.String(),
			q.LastPrice.String(),
			strconv.Itoa(q.LastSize),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeQuotesPNG(path, symbol string, quotes []storage.QuoteEvent) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(quotes))
	bid := make([]float64, len(quotes))
	ask := make([]float64, len(quotes))
	last := make([]float64, len(quotes))

	for i, q := range quotes {
		x[i] = q.CreatedOn
		bid[i] = q.BidPrice.InexactFloat64()
		ask[i] = q.AskPrice.InexactFloat64()
		last[i] = q.LastPrice.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           symbol + " price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Bid",
				XValues: x,
				YValues: bid,
			},
			chart.TimeSeries{
				Name:    "Ask",
				XValues: x,
				YValues: ask,
			},
			chart.TimeSeries{
				Name:    "Last",
				XValues: x,
				YValues: last,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
