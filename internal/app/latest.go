package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"flowstore/internal/symbols"
	"flowstore/internal/timeseries"
)

// Latest prints the current snapshot for one symbol: the most recent quote,
// the prior day's close, and today's put/call balance. Given several symbols
// it prints a compact most-recent-quote table instead.
func (a *App) Latest(ctx context.Context, symbol string) error {
	filter := symbols.Expand(symbol)
	if filter.IsEmpty() {
		return errors.New("--symbol is required")
	}

	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repos, err := a.buildRepos(pool, nil)
	if err != nil {
		return err
	}

	if _, single := filter.Single(); !single {
		return a.latestTable(ctx, repos, filter)
	}

	snap, err := repos.Quotes.Latest(ctx, symbol)
	if err != nil {
		if errors.Is(err, timeseries.ErrNotFound) {
			fmt.Fprintf(os.Stdout, "no quotes recorded for %s\n", symbol)
			return nil
		}
		return err
	}

	policy, err := a.rollbackPolicy()
	if err != nil {
		return err
	}
	now := time.Now().In(policy.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, policy.Location)

	summary, err := repos.Trades.PutCallSummary(ctx, timeseries.Window{
		From:    dayStart,
		To:      now,
		Symbols: symbols.Expand(symbol),
	})
	if err != nil {
		return err
	}

	q := snap.Quote
	fmt.Fprintf(os.Stdout, "%s as of %s\n", q.Symbol, q.CreatedOn.UTC().Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "  last %s (size %d)  bid %s  ask %s\n",
		formatDecimal(q.LastPrice, 2), q.LastSize,
		formatDecimal(q.BidPrice, 2), formatDecimal(q.AskPrice, 2))
	fmt.Fprintf(os.Stdout, "  prev close %s\n", formatDecimal(snap.PrevClose, 2))
	fmt.Fprintf(os.Stdout, "  today puts %d / calls %d\n", summary.Puts, summary.Calls)
	return nil
}

func (a *App) latestTable(ctx context.Context, repos *Repos, filter symbols.Filter) error {
	quotes, err := repos.Quotes.MostRecent(ctx, filter)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		fmt.Fprintln(os.Stdout, "no quotes recorded for requested symbols")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer writer.Flush()
	fmt.Fprintln(writer, "Symbol\tTime (UTC)\tBid\tAsk\tLast")
	for _, q := range quotes {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			q.Symbol,
			q.CreatedOn.UTC().Format(time.RFC3339),
			formatDecimal(q.BidPrice, 2),
			formatDecimal(q.AskPrice, 2),
			formatDecimal(q.LastPrice, 2),
		)
	}
	return nil
}
