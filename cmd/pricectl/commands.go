package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/codyseavey/pokefolio/internal/models"
)

type refreshCmd struct {
	attempts int
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "run one full price update cycle now" }
func (*refreshCmd) Usage() string {
	return `pricectl refresh [-attempts n]

  Fetches every tracked card, records today's prices and values every
  portfolio, retrying with the configured delay. Exits non-zero when the
  cycle fails after all attempts.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.attempts, "attempts", 0, "override TRACKER_MAX_ATTEMPTS")
}

func (c *refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	tracker, err := e.tracker(c.attempts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !tracker.TriggerManual(ctx) {
		status := tracker.Status()
		fmt.Fprintf(os.Stderr, "price update failed after %d attempt(s); failed cards: %v\n", status.LastAttempts, status.LastFailedCards)
		return subcommands.ExitFailure
	}

	fmt.Printf("price update succeeded after %d attempt(s)\n", tracker.Status().LastAttempts)
	return subcommands.ExitSuccess
}

type cardCmd struct{}

func (*cardCmd) Name() string     { return "card" }
func (*cardCmd) Synopsis() string { return "fetch and record the current price of cards" }
func (*cardCmd) Usage() string {
	return `pricectl card <card-id>...

  Fetches each card from the price source, refreshes its cached snapshot
  and today's price history row, and prints the selected price.
`
}

func (*cardCmd) SetFlags(*flag.FlagSet) {}

func (*cardCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	e, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	tracker, err := e.tracker(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	status := subcommands.ExitSuccess
	for _, id := range f.Args() {
		card, err := tracker.UpdateCard(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s\t%s\t%s\t$%s\n", card.ID, card.Name, card.SetName, card.CurrentPrice.StringFixed(2))
	}
	return status
}

type historyCmd struct {
	card   string
	user   string
	period string
	asJSON bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print recorded card price or portfolio value history" }
func (*historyCmd) Usage() string {
	return `pricectl history (-card <card-id> | -user <user-id>) [-period week|month|3month|year|all] [-json]

  Prints one line per recorded day, oldest first.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.card, "card", "", "card id")
	f.StringVar(&c.user, "user", "", "user id")
	f.StringVar(&c.period, "period", "month", "history period")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of text")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.card == "") == (c.user == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -card or -user is required")
		return subcommands.ExitUsageError
	}

	e, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	since := models.PeriodStart(c.period, time.Now())

	var rows []historyRow
	if c.card != "" {
		prices, err := e.store.GetCardPriceHistory(ctx, c.card, since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, p := range prices {
			rows = append(rows, historyRow{Day: p.Day, Value: p.Price.StringFixed(2)})
		}
	} else {
		values, err := e.store.GetPortfolioValueHistory(ctx, c.user, since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, v := range values {
			rows = append(rows, historyRow{Day: v.Day, Value: v.TotalValue.StringFixed(2)})
		}
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	for _, r := range rows {
		fmt.Printf("%s\t$%s\n", r.Day, r.Value)
	}
	return subcommands.ExitSuccess
}

type historyRow struct {
	Day   string `json:"day"`
	Value string `json:"value"`
}
