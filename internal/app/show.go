package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"flowstore/internal/timeseries"
)

// Show prints recent records from one dataset.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repos, err := a.buildRepos(pool, nil)
	if err != nil {
		return err
	}

	policy, err := a.rollbackPolicy()
	if err != nil {
		return err
	}
	w := a.showWindow(opts, policy.Location)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer writer.Flush()

	switch opts.Dataset {
	case "prints":
		records, err := repos.TimeAndSale.List(ctx, w, opts.Rollback)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no prints found")
			return nil
		}
		fmt.Fprintln(writer, "Time (UTC)\tSymbol\tPrice\tSize\tBid\tAsk\tSide\tExchange")
		for _, t := range records {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%.0f\t%s\t%s\t%s\t%s\n",
				t.CreatedOn.UTC().Format(time.RFC3339),
				t.Symbol,
				formatDecimal(t.Price, 3),
				t.Size,
				formatDecimal(t.BidPrice, 3),
				formatDecimal(t.AskPrice, 3),
				t.AggressorSide,
				t.ExchangeCode,
			)
		}
	case "quotes":
		records, err := repos.Quotes.List(ctx, w, opts.Rollback)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no quotes found")
			return nil
		}
		fmt.Fprintln(writer, "Time (UTC)\tSymbol\tType\tBid\tMid\tAsk\tLast")
		for _, q := range records {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				q.CreatedOn.UTC().Format(time.RFC3339),
				q.Symbol,
				q.EventType,
				formatDecimal(q.BidPrice, 3),
				formatDecimal(q.MidPrice, 3),
				formatDecimal(q.AskPrice, 3),
				formatDecimal(q.LastPrice, 3),
			)
		}
	case "trades":
		records, err := repos.Trades.List(ctx, w, opts.Rollback)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no option trades found")
			return nil
		}
		fmt.Fprintln(writer, "Time (UTC)\tSymbol\tType\tStrike\tExpiry\tPrice\tSize\tNotional\tSentiment")
		for _, t := range records {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				t.OccurredAt.UTC().Format(time.RFC3339),
				t.Symbol,
				t.OptionType,
				formatDecimal(t.Strike, 2),
				t.Expiry.Format("2006-01-02"),
				formatDecimal(t.Price, 3),
				t.Size,
				formatDecimal(t.Notional, 0),
				t.Sentiment,
			)
		}
	case "alerts":
		records, err := repos.PowerAlerts.List(ctx, w, opts.MinStrength, opts.Rollback)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no power alerts found")
			return nil
		}
		fmt.Fprintln(writer, "Date\tSymbol\tStrength\tCalls\tUnusual\tDark Pool\tFirst Spot\tBroken")
		for _, p := range records {
			fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%t\n",
				p.AlertDate.UTC().Format("2006-01-02"),
				p.Symbol,
				p.Strength,
				p.NumCalls,
				p.NumUnusual,
				p.NumDarkPool,
				formatDecimal(p.FirstSpot, 2),
				p.Broken,
			)
		}
	case "volume":
		records, err := repos.Volume.GetRange(ctx, w, opts.Rollback)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no volume snapshots found")
			return nil
		}
		fmt.Fprintln(writer, "Date\tSymbol\tOpt Volume\tPuts\tCalls\t%ADV\tSpot\tComments")
		for _, v := range records {
			fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%d\t%.1f\t%s\t%s\n",
				v.Date.UTC().Format("2006-01-02"),
				v.Symbol,
				v.OptionVolume,
				v.Puts,
				v.Calls,
				v.PctADV,
				formatDecimal(v.Spot, 2),
				sanitizeInline(v.Comments),
			)
		}
	case "signatures":
		records, err := repos.SignaturePrints.List(ctx, opts.Symbols)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no signature prints found")
			return nil
		}
		fmt.Fprintln(writer, "Symbol\tOccurrences\tLast Print (UTC)")
		for _, s := range records {
			fmt.Fprintf(writer, "%s\t%d\t%s\n",
				s.Symbol,
				s.Occurrence,
				s.PrintDate.UTC().Format(time.RFC3339),
			)
		}
	default:
		return fmt.Errorf("unknown dataset %q", opts.Dataset)
	}

	return nil
}

// showWindow derives the query window: explicit bounds when given, otherwise
// today's calendar day in the rollback calendar.
func (a *App) showWindow(opts ShowOptions, loc *time.Location) timeseries.Window {
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to := now
	if opts.From != nil {
		from = *opts.From
	}
	if opts.To != nil {
		to = *opts.To
	}
	return timeseries.Window{
		From:    from,
		To:      to,
		Symbols: opts.Symbols,
		Limit:   opts.Limit,
	}
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
