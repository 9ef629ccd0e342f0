// Package update implements the UpdateCoordinator: it orchestrates a parser
// goroutine reading the remote catalog stream, an indexer goroutine (the
// caller) writing rows inside one transaction, and the final commit and WAL
// checkpoint. Full and partial updates share this scaffold; they differ only
// in their catalogdb.Deleter.
package update

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/filmindex/filmindex/internal/blobstore"
	"github.com/filmindex/filmindex/internal/catalogdb"
	"github.com/filmindex/filmindex/internal/fetch"
	"github.com/filmindex/filmindex/internal/metrics"
	"github.com/filmindex/filmindex/internal/stream"
)

// itemChanCapacity is the parser-to-indexer channel's buffer, matching the
// "capacity in the order of 128" contract: large enough to absorb a burst
// of small records without the parser's sender blocking on every item, but
// small enough that backpressure onto a slow network read arrives quickly.
const itemChanCapacity = 128

// Coordinator runs full and partial updates against the catalog database
// rooted at dir.
type Coordinator struct {
	dir          string
	pool         *blobstore.Pool
	http2        bool
	acceptBrotli bool
	// partialScanLimiter paces the partial-update per-item dedup scan so a
	// pathological topic with thousands of shows cannot starve the caller.
	partialScanLimiter *rate.Limiter
}

// NewCoordinator returns a Coordinator. partialUpdateRPS bounds how many
// items per second the partial-update dedup scan processes; pool runs the
// background blob compression (nil uses blobstore.DefaultPool).
func NewCoordinator(dir string, partialUpdateRPS int, http2Enabled, acceptBrotli bool, pool *blobstore.Pool) *Coordinator {
	if partialUpdateRPS <= 0 {
		partialUpdateRPS = 2000
	}
	if pool == nil {
		pool = blobstore.DefaultPool
	}
	return &Coordinator{
		dir:                dir,
		pool:               pool,
		http2:              http2Enabled,
		acceptBrotli:       acceptBrotli,
		partialScanLimiter: rate.NewLimiter(rate.Limit(partialUpdateRPS), partialUpdateRPS),
	}
}

// Full truncates every table and reindexes the entire catalog from url.
func (c *Coordinator) Full(ctx context.Context, url string) error {
	return c.run(ctx, "full", url, func(tx *sql.Tx) (catalogdb.Deleter, error) {
		if err := catalogdb.Reset(tx); err != nil {
			return nil, err
		}
		return catalogdb.NoopDeleter, nil
	}, false)
}

// Partial reindexes url's items, deleting and replacing any existing show
// that matches an incoming item's (topic, title, url), per spec §4.6.
func (c *Coordinator) Partial(ctx context.Context, url string) error {
	return c.run(ctx, "partial", url, func(tx *sql.Tx) (catalogdb.Deleter, error) {
		maxID, err := catalogdb.MaxShowID(tx)
		if err != nil {
			return nil, err
		}
		deleter, err := catalogdb.NewPartialDeleter(maxID)
		if err != nil {
			return nil, err
		}
		return deleter.Delete, nil
	}, true)
}

func (c *Coordinator) run(ctx context.Context, kind, url string, deleterFactory func(*sql.Tx) (catalogdb.Deleter, error), paced bool) (err error) {
	start := time.Now()
	defer func() {
		metrics.UpdateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpdateFailures.WithLabelValues(kind).Inc()
		}
	}()
	db, err := catalogdb.OpenExisting(c.dir)
	if err != nil {
		return fmt.Errorf("update: open writer connection: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	deleter, err := deleterFactory(tx)
	if err != nil {
		return fmt.Errorf("update: prepare deleter: %w", err)
	}

	idx, err := catalogdb.NewIndexer(tx, deleter, c.pool)
	if err != nil {
		return fmt.Errorf("update: start indexer: %w", err)
	}
	finished := false
	defer func() {
		if !finished {
			idx.Abandon()
		}
	}()

	source, err := fetch.Open(ctx, url, c.http2, c.acceptBrotli)
	if err != nil {
		return fmt.Errorf("update: open source: %w", err)
	}
	defer source.Close()

	items := make(chan stream.Item, itemChanCapacity)
	parseErrc := make(chan error, 1)
	go func() {
		parseErrc <- stream.Parse(ctx, source, items)
	}()

	for item := range items {
		if paced {
			if waitErr := c.partialScanLimiter.Wait(ctx); waitErr != nil {
				err = fmt.Errorf("update: rate limiter: %w", waitErr)
				// Drain the channel so the parser goroutine's send doesn't
				// block forever after we stop consuming.
				for range items {
				}
				break
			}
		}
		if procErr := idx.Process(item); procErr != nil {
			err = fmt.Errorf("update: process item: %w", procErr)
			for range items {
			}
			break
		}
	}
	if err != nil {
		<-parseErrc
		return err
	}

	if parseErr := <-parseErrc; parseErr != nil {
		err = fmt.Errorf("update: parse catalog stream: %w", parseErr)
		return err
	}

	if finishErr := idx.Finish(); finishErr != nil {
		err = fmt.Errorf("update: finish compressors: %w", finishErr)
		return err
	}
	finished = true
	if _, analyzeErr := tx.Exec(`ANALYZE`); analyzeErr != nil {
		err = fmt.Errorf("update: analyze: %w", analyzeErr)
		return err
	}
	if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("update: commit: %w", commitErr)
		return err
	}

	if checkpointErr := db.Checkpoint(); checkpointErr != nil {
		log.Printf("update: wal checkpoint failed (committed update is unaffected): %v", checkpointErr)
	}
	return nil
}
