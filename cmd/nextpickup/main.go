// Command nextpickup prints when the next bin pickup happens.
//
// Offline, for a known weekday and frequency:
//
//	nextpickup --day Monday --frequency ODD [--date 2024-03-01] [--weeks 4]
//
// Online, looking up all three carts for a location:
//
//	nextpickup --lat 51.0447 --long -114.0719 [--cache data/bincollect.db]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/zapponejosh/bincollect/internal/database"
	"github.com/zapponejosh/bincollect/internal/logger"
	"github.com/zapponejosh/bincollect/internal/pickup"
	"github.com/zapponejosh/bincollect/internal/schedule"
	"github.com/zapponejosh/bincollect/internal/source"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	day       string
	frequency string
	date      string
	weeks     int

	lat, long float64
	sourceURL string
	radius    float64
	cachePath string
	cacheTTL  time.Duration
	verbose   bool
}

func run(args []string, out io.Writer, now func() time.Time) error {
	var opts options

	flagSet := pflag.NewFlagSet("nextpickup", pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintln(out, "Usage: nextpickup --day DAY [--frequency EVERY|ODD|EVEN] | --lat LAT --long LONG")
		fmt.Fprint(out, flagSet.FlagUsages())
	}
	flagSet.StringVarP(&opts.day, "day", "d", "", "pickup weekday, e.g. Monday")
	flagSet.StringVarP(&opts.frequency, "frequency", "f", string(schedule.FrequencyEvery), "EVERY, ODD or EVEN")
	flagSet.StringVar(&opts.date, "date", "", "reference date YYYY-MM-DD (default today)")
	flagSet.IntVarP(&opts.weeks, "weeks", "n", pickup.DefaultWeeks, "upcoming pickups to list")
	flagSet.Float64Var(&opts.lat, "lat", 0, "latitude to look up")
	flagSet.Float64Var(&opts.long, "long", 0, "longitude to look up")
	flagSet.StringVar(&opts.sourceURL, "source-url", source.DefaultURL, "Open Data dataset endpoint")
	flagSet.Float64Var(&opts.radius, "radius", source.DefaultClientConfig().RadiusMeters, "search radius in meters")
	flagSet.StringVar(&opts.cachePath, "cache", "", "SQLite lookup cache (disabled when empty)")
	flagSet.DurationVar(&opts.cacheTTL, "cache-ttl", 24*time.Hour, "how long cached lookups stay fresh")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")
	flagSet.SetOutput(out)

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	reference := now()
	if opts.date != "" {
		d, err := pickup.ParseDate(opts.date)
		if err != nil {
			return fmt.Errorf("invalid --date %q, use YYYY-MM-DD", opts.date)
		}
		reference = d
	}
	if opts.weeks < 1 || opts.weeks > schedule.MaxUpcoming {
		return fmt.Errorf("--weeks must be between 1 and %d", schedule.MaxUpcoming)
	}

	online := flagSet.Changed("lat") || flagSet.Changed("long")
	switch {
	case online && opts.day != "":
		return errors.New("use either --day or --lat/--long, not both")
	case online:
		return runLocation(opts, reference, out)
	case opts.day != "":
		return runOffline(opts, reference, out)
	default:
		flagSet.Usage()
		return errors.New("either --day or --lat/--long is required")
	}
}

func runOffline(opts options, reference time.Time, out io.Writer) error {
	weekday, err := schedule.ParseWeekday(opts.day)
	if err != nil {
		return err
	}
	frequency, err := schedule.ParseFrequency(strings.ToUpper(opts.frequency))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, schedule.NextOccurrence(reference, weekday, frequency))

	upcoming, err := schedule.Upcoming(reference, weekday, frequency, opts.weeks)
	if err != nil {
		return err
	}
	for _, d := range upcoming {
		fmt.Fprintf(out, "  %s  %s\n", pickup.FormatDate(d), schedule.FormatDay(d))
	}
	return nil
}

func runLocation(opts options, reference time.Time, out io.Writer) error {
	if !pickup.ValidCoordinates(opts.lat, opts.long) {
		return fmt.Errorf("invalid coordinates %v, %v", opts.lat, opts.long)
	}

	log := logger.Discard()
	if opts.verbose {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := source.DefaultClientConfig()
	cfg.BaseURL = opts.sourceURL
	cfg.RadiusMeters = opts.radius
	client := source.NewClient(cfg, log)

	var cache pickup.Cache
	if opts.cachePath != "" {
		db, err := database.Open(database.DefaultConfig(opts.cachePath), log)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.Migrate(ctx); err != nil {
			return err
		}
		cache = db
	}

	svc := pickup.NewService(client, cache, opts.cacheTTL, log)
	reports, err := svc.Reports(ctx, opts.lat, opts.long, reference, opts.weeks)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\n", r.Label, r.Day, strings.ToLower(string(r.Frequency)), r.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return nil
}
