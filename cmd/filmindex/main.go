// Command filmindex ingests the XZ-compressed show catalog stream into a
// local SQLite index and serves read-path queries against it, plus an
// optional /metrics endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/filmindex/filmindex/internal/catalogdb"
	"github.com/filmindex/filmindex/internal/config"
	"github.com/filmindex/filmindex/internal/health"
	"github.com/filmindex/filmindex/internal/metrics"
	"github.com/filmindex/filmindex/internal/update"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	serveMetrics(cfg.MetricsAddr)

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "full-update":
		err = runFullUpdate(cfg, args)
	case "partial-update":
		err = runPartialUpdate(cfg, args)
	case "channels":
		err = runChannels(cfg, args)
	case "topics":
		err = runTopics(cfg, args)
	case "query":
		err = runQuery(cfg, args)
	case "fetch":
		err = runFetch(cfg, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: filmindex <command> [flags]

commands:
  full-update      reindex the entire catalog from -source
  partial-update   apply incremental changes from -source
  channels         list distinct channel names
  topics           list distinct topics under -channel
  query            list matching show ids
  fetch            print one show's channel, topic, title, description,
                   url and website by -id`)
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()
}

func sourceOrConfig(fs *flag.FlagSet, cfg *config.Config) *string {
	return fs.String("source", cfg.SourceURL, "catalog source URL (defaults to FILMINDEX_SOURCE_URL)")
}

func runFullUpdate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("full-update", flag.ExitOnError)
	source := sourceOrConfig(fs, cfg)
	fs.Parse(args)
	if *source == "" {
		return fmt.Errorf("no source URL (pass -source or set FILMINDEX_SOURCE_URL)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := health.CheckSource(ctx, *source); err != nil {
		return fmt.Errorf("source health check: %w", err)
	}

	coord := update.NewCoordinator(cfg.DBPath, cfg.PartialUpdateRPS, cfg.HTTP2, cfg.AcceptBrotli, nil)
	log.Printf("starting full update from %s", *source)
	if err := coord.Full(ctx, *source); err != nil {
		return err
	}
	log.Printf("full update complete")
	return nil
}

func runPartialUpdate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("partial-update", flag.ExitOnError)
	source := sourceOrConfig(fs, cfg)
	fs.Parse(args)
	if *source == "" {
		return fmt.Errorf("no source URL (pass -source or set FILMINDEX_SOURCE_URL)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := health.CheckSource(ctx, *source); err != nil {
		return fmt.Errorf("source health check: %w", err)
	}

	coord := update.NewCoordinator(cfg.DBPath, cfg.PartialUpdateRPS, cfg.HTTP2, cfg.AcceptBrotli, nil)
	log.Printf("starting partial update from %s", *source)
	if err := coord.Partial(ctx, *source); err != nil {
		return err
	}
	log.Printf("partial update complete")
	return nil
}

func runChannels(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("channels", flag.ExitOnError)
	fs.Parse(args)

	db, _, err := catalogdb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Channels(func(channel string) {
		fmt.Println(channel)
	})
}

func runTopics(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("topics", flag.ExitOnError)
	channel := fs.String("channel", "", "channel name prefix")
	fs.Parse(args)

	db, _, err := catalogdb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Topics(*channel, func(topic string) {
		fmt.Println(topic)
	})
}

func runQuery(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	channel := fs.String("channel", "", "channel name prefix")
	topic := fs.String("topic", "", "topic name prefix")
	title := fs.String("title", "", "title prefix (FTS5 match)")
	sortBy := fs.String("sort", "date", "sort column: channel|topic|date|time|duration")
	desc := fs.Bool("desc", false, "sort descending")
	fs.Parse(args)

	column, err := parseSortColumn(*sortBy)
	if err != nil {
		return err
	}
	order := catalogdb.Ascending
	if *desc {
		order = catalogdb.Descending
	}

	db, _, err := catalogdb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Query(*channel, *topic, *title, column, order, func(id int64) {
		fmt.Println(id)
	})
}

func parseSortColumn(s string) (catalogdb.SortColumn, error) {
	switch s {
	case "channel":
		return catalogdb.SortChannel, nil
	case "topic":
		return catalogdb.SortTopic, nil
	case "date":
		return catalogdb.SortDate, nil
	case "time":
		return catalogdb.SortTime, nil
	case "duration":
		return catalogdb.SortDuration, nil
	default:
		return 0, fmt.Errorf("unknown sort column %q", s)
	}
}

func runFetch(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	id := fs.Int64("id", 0, "show id")
	fs.Parse(args)
	if *id == 0 {
		return fmt.Errorf("missing -id")
	}

	db, _, err := catalogdb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	fetcher, err := catalogdb.NewFetcher()
	if err != nil {
		return err
	}
	show, err := db.Fetch(fetcher, *id)
	if err != nil {
		return err
	}
	fmt.Printf("%s / %s / %s\n%s\nurl: %s\nwebsite: %s\n", show.Channel, show.Topic, show.Title, show.Description, show.URL, show.Website)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("signal received, cancelling")
		cancel()
	}()
	return ctx, cancel
}
