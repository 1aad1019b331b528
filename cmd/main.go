package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"mvrv/internal/bootstrap"
	"mvrv/internal/domain/mvrv"
	"mvrv/internal/services/pricing"
	"mvrv/pkg/errors"
)

func main() {
	app := &cli.App{
		Name:  "mvrv",
		Usage: "Estimate the Bitcoin MVRV ratio from sampled UTXOs",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the scheduler and HTTP API until interrupted",
				Action: run,
			},
			{
				Name:   "update",
				Usage:  "Run one hourly estimation cycle now",
				Action: update,
			},
			{
				Name:   "aggregate",
				Usage:  "Aggregate hourly records of a day into a daily record",
				Action: aggregate,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "date",
						Usage: "UTC day to aggregate (YYYY-MM-DD), default yesterday",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "Print stored records, oldest first",
				Action: history,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "timeframe",
						Value: string(mvrv.TimeframeHourly),
						Usage: "hourly or daily",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 24,
					},
				},
			},
			{
				Name:   "backfill",
				Usage:  "Load recent daily prices into the store",
				Action: backfill,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "days of history to load, default from configuration",
					},
				},
			},
			{
				Name:   "insights",
				Usage:  "Print statistics over recent hourly records",
				Action: insights,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newContainer() *bootstrap.Container {
	c := bootstrap.NewContainer()
	c.MustInit()
	return c
}

func run(_ *cli.Context) error {
	c := newContainer()

	if err := c.Start(); err != nil {
		c.Shutdown()
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Infow("Shutdown signal received", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Application context cancelled")
	}

	c.Shutdown()
	return nil
}

func update(cctx *cli.Context) error {
	c := newContainer()
	defer c.Close()

	if err := c.Background.WorkerScheduler.ManualUpdate(cctx.Context); err != nil {
		return err
	}

	res := c.Background.Hourly.LastResult()
	if res == nil {
		fmt.Println("cycle skipped: another instance holds the cycle lock")
		return nil
	}

	r := res.Record
	fmt.Printf("cycle        %s\n", res.CycleID)
	fmt.Printf("timestamp    %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Printf("market value %s\n", usd(r.MarketValue))
	fmt.Printf("realized     %s\n", usd(r.RealizedValue))
	fmt.Printf("mvrv         %.4f (%s: %s)\n", r.Ratio, r.Signal, r.Signal.Description())
	fmt.Printf("confidence   %.2f\n", r.Confidence)
	if res.Report != nil {
		fmt.Printf("sample       %s UTXOs from %d blocks, %d addresses\n",
			humanize.Comma(int64(res.Report.Size())), res.Report.BlocksScanned, res.Report.DistinctAddresses())
	}
	if res.Fallback() {
		fmt.Println("note         values carried over from the previous record")
	}
	return nil
}

func aggregate(cctx *cli.Context) error {
	day := mvrv.DayStart(time.Now()).Add(-24 * time.Hour)
	if raw := cctx.String("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return errors.NewValidationError("date", "expected YYYY-MM-DD", raw)
		}
		day = parsed
	}

	c := newContainer()
	defer c.Close()

	record, err := c.Services.Computer.Aggregate(cctx.Context, day)
	if err != nil {
		return err
	}
	fmt.Printf("%s  mvrv %.4f  %s  from %d hourly records\n",
		record.Timestamp.Format("2006-01-02"), record.Ratio, record.Signal, record.DataPoints)
	return nil
}

func history(cctx *cli.Context) error {
	tf := mvrv.Timeframe(cctx.String("timeframe"))
	if !tf.Valid() {
		return errors.NewValidationError("timeframe", "must be hourly or daily", tf)
	}

	c := newContainer()
	defer c.Close()

	records, err := c.Repos.MVRV.QueryHistory(cctx.Context, tf, cctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tMVRV\tSIGNAL\tMARKET VALUE\tREALIZED VALUE\tCONFIDENCE\tPOINTS\tAGE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%.4f\t%s\t%s\t%s\t%.2f\t%d\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04"),
			r.Ratio,
			r.Signal,
			usd(r.MarketValue),
			usd(r.RealizedValue),
			r.Confidence,
			r.DataPoints,
			humanize.Time(r.Timestamp),
		)
	}
	return w.Flush()
}

func backfill(cctx *cli.Context) error {
	c := newContainer()
	defer c.Close()

	days := c.Config.Estimation.BackfillDays
	if cctx.IsSet("days") {
		days = cctx.Int("days")
	}
	if days <= 0 {
		return errors.NewValidationError("days", "must be positive", days)
	}

	b := pricing.NewBackfiller(
		pricing.BackfillConfig{
			Days:          days,
			BatchSize:     c.Config.Estimation.BackfillBatch,
			FlushInterval: c.Config.Estimation.BackfillFlushInterval,
		},
		c.Adapters.Prices,
		c.Repos.MVRV,
	)
	n, err := b.Run(cctx.Context, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("stored %s daily prices covering %d days\n", humanize.Comma(int64(n)), days)
	return nil
}

func insights(cctx *cli.Context) error {
	c := newContainer()
	defer c.Close()

	ctx, cancel := context.WithTimeout(cctx.Context, 30*time.Second)
	defer cancel()

	in, err := c.Services.Computer.Insights(ctx, c.Config.Estimation.InsightsWindow)
	if err != nil {
		return err
	}

	fmt.Printf("window       %d hourly records (%s to %s)\n", in.WindowSize,
		in.From.Format("2006-01-02 15:04"), in.To.Format("2006-01-02 15:04"))
	fmt.Printf("current      %.4f (%s)\n", in.CurrentRatio, in.CurrentSignal)
	fmt.Printf("mean         %.4f  stddev %.4f\n", in.MeanRatio, in.StdDevRatio)
	fmt.Printf("range        %.4f .. %.4f\n", in.MinRatio, in.MaxRatio)
	fmt.Printf("trend        %s\n", in.Trend)
	fmt.Printf("confidence   %.2f (%s quality)\n", in.MeanConfidence, in.DataQuality)
	return nil
}

func usd(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 0)
}
