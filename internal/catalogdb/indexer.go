package catalogdb

import (
	"database/sql"
	"fmt"

	"github.com/filmindex/filmindex/internal/blobstore"
	"github.com/filmindex/filmindex/internal/metrics"
	"github.com/filmindex/filmindex/internal/stream"
)

// Rotation thresholds for the text and url staging buffers; once a push
// brings the buffer's length to at least this many bytes, the buffer is
// rotated out for background compression. These govern blob granularity
// and decompression cost per query and must not be tuned casually.
const (
	textBlobThreshold = 256 * 1024
	urlBlobThreshold  = 512 * 1024
)

// Deleter decides, for an incoming item about to be inserted under topicID,
// whether a previously-committed show should be removed first (and its FTS
// row tombstoned). A full update's deleter is a no-op; a partial update's
// deleter performs the scan-and-compare described in spec §4.6.
type Deleter func(tx *sql.Tx, topicID int64, item stream.Item) error

// NoopDeleter never deletes; used by a full update, which instead truncates
// every table up front (see Reset).
func NoopDeleter(*sql.Tx, int64, stream.Item) error { return nil }

// Indexer consumes parsed Items inside a single write transaction, upserting
// channels/topics and inserting shows, blobs, and FTS rows.
type Indexer struct {
	tx      *sql.Tx
	deleter Deleter

	pool *blobstore.Pool
	text *blobstore.BackgroundCompressor[int64]
	urls *blobstore.BackgroundCompressor[int64]

	channelID    int64
	topicID      int64
	haveChannel  bool
	haveTopic    bool
	curTextBlob  int64
	curURLBlob   int64
}

// NewIndexer starts an indexer writing within tx. pool runs the background
// compression jobs; a nil pool uses blobstore.DefaultPool.
func NewIndexer(tx *sql.Tx, deleter Deleter, pool *blobstore.Pool) (*Indexer, error) {
	if pool == nil {
		pool = blobstore.DefaultPool
	}
	idx := &Indexer{
		tx:      tx,
		deleter: deleter,
		pool:    pool,
		text:    blobstore.New[int64](pool),
		urls:    blobstore.New[int64](pool),
	}

	textID, err := nextBlobID(tx)
	if err != nil {
		return nil, err
	}
	urlID, err := nextBlobID(tx)
	if err != nil {
		return nil, err
	}
	idx.curTextBlob = textID
	idx.curURLBlob = urlID
	return idx, nil
}

// Reset truncates every table for a full update. Must be called, if at all,
// before any item is processed.
func Reset(tx *sql.Tx) error {
	stmts := []string{
		`DELETE FROM blobs`,
		`INSERT INTO shows_by_title (shows_by_title) VALUES ('delete-all')`,
		`DELETE FROM shows`,
		`DELETE FROM topics`,
		`DELETE FROM channels`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return fmt.Errorf("catalogdb: reset %q: %w", s, err)
		}
	}
	return nil
}

// MaxShowID returns the current high-water mark of the shows sequence, for a
// partial update to capture before any new rows are inserted.
func MaxShowID(tx *sql.Tx) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT seq FROM sqlite_sequence WHERE name = 'shows'`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalogdb: read max show id: %w", err)
	}
	return id, nil
}

// Process ingests one item: resolves channel/topic, runs the deleter, writes
// the blob strings and the shows/shows_by_title rows, then rotates either
// staging buffer whose length has crossed its threshold.
func (idx *Indexer) Process(item stream.Item) error {
	if err := idx.resolveChannelTopic(item); err != nil {
		return err
	}
	if !idx.haveTopic {
		return fmt.Errorf("catalogdb: item has no channel/topic context: %+v", item)
	}

	if err := idx.deleter(idx.tx, idx.topicID, item); err != nil {
		return err
	}

	textOffset, err := idx.text.Push(item.Title)
	if err != nil {
		return fmt.Errorf("catalogdb: push title: %w", err)
	}
	if _, err := idx.text.Push(item.Description); err != nil {
		return fmt.Errorf("catalogdb: push description: %w", err)
	}

	urlOffset, err := idx.urls.Push(item.URL)
	if err != nil {
		return fmt.Errorf("catalogdb: push url: %w", err)
	}
	var urlMask int
	if item.URLSmall != nil {
		if _, err := idx.urls.Push(*item.URLSmall); err != nil {
			return fmt.Errorf("catalogdb: push url_small: %w", err)
		}
		urlMask |= URLSmall
	}
	if item.URLLarge != nil {
		if _, err := idx.urls.Push(*item.URLLarge); err != nil {
			return fmt.Errorf("catalogdb: push url_large: %w", err)
		}
		urlMask |= URLLarge
	}
	if _, err := idx.urls.Push(item.Website); err != nil {
		return fmt.Errorf("catalogdb: push website: %w", err)
	}

	res, err := idx.tx.Exec(
		`INSERT INTO shows
			(topic_id, text_blob_id, text_offset, url_blob_id, url_offset, url_mask, date, time, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idx.topicID, idx.curTextBlob, textOffset, idx.curURLBlob, urlOffset, urlMask,
		JulianDay(item.Date), int(item.Time), int(item.Duration),
	)
	if err != nil {
		return fmt.Errorf("catalogdb: insert show: %w", err)
	}
	showID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("catalogdb: read show id: %w", err)
	}
	if _, err := idx.tx.Exec(
		`INSERT INTO shows_by_title (rowid, title) VALUES (?, ?)`, showID, item.Title,
	); err != nil {
		return fmt.Errorf("catalogdb: insert fts row: %w", err)
	}

	if idx.text.Len() >= textBlobThreshold {
		if err := idx.rotateText(); err != nil {
			return err
		}
	}
	if idx.urls.Len() >= urlBlobThreshold {
		if err := idx.rotateURLs(); err != nil {
			return err
		}
	}
	metrics.ItemsParsed.Inc()
	return nil
}

func (idx *Indexer) rotateText() error {
	newID, err := nextBlobID(idx.tx)
	if err != nil {
		return err
	}
	prevID := idx.curTextBlob
	idx.curTextBlob = newID
	metrics.BlobsCompressed.WithLabelValues("text").Inc()
	return idx.text.Rotate(prevID, idx.writeBlob)
}

func (idx *Indexer) rotateURLs() error {
	newID, err := nextBlobID(idx.tx)
	if err != nil {
		return err
	}
	prevID := idx.curURLBlob
	idx.curURLBlob = newID
	metrics.BlobsCompressed.WithLabelValues("url").Inc()
	return idx.urls.Rotate(prevID, idx.writeBlob)
}

func (idx *Indexer) writeBlob(id int64, compressed []byte) error {
	if _, err := idx.tx.Exec(`INSERT INTO blobs (id, blob) VALUES (?, ?)`, id, compressed); err != nil {
		return fmt.Errorf("catalogdb: insert blob %d: %w", id, err)
	}
	return nil
}

// Finish drains both compressors, flushing whatever strings remain staged
// under their current blob ids. Call once after the item source is
// exhausted and before committing the transaction.
func (idx *Indexer) Finish() error {
	if err := idx.text.Finish(idx.curTextBlob, idx.writeBlob); err != nil {
		return fmt.Errorf("catalogdb: finish text compressor: %w", err)
	}
	if err := idx.urls.Finish(idx.curURLBlob, idx.writeBlob); err != nil {
		return fmt.Errorf("catalogdb: finish url compressor: %w", err)
	}
	return nil
}

// Abandon waits out any compression jobs already submitted by a prior
// Rotate, discarding their results instead of writing them. Call this
// instead of Finish when an update aborts: the surrounding transaction is
// about to roll back, so there is nothing to write, but jobs already
// queued on the shared pool still need to be drained rather than left
// outstanding.
func (idx *Indexer) Abandon() {
	idx.text.Drain()
	idx.urls.Drain()
}

// resolveChannelTopic applies the denormalized channel/topic inheritance
// rule: a non-empty topic triggers (re)resolving channel (if non-empty) and
// topic; an empty topic leaves both ids untouched, reusing whatever context
// the previous item established.
func (idx *Indexer) resolveChannelTopic(item stream.Item) error {
	if item.Topic == "" {
		return nil
	}
	if item.Channel != "" {
		id, err := getOrInsertChannel(idx.tx, item.Channel)
		if err != nil {
			return err
		}
		idx.channelID = id
		idx.haveChannel = true
	}
	if !idx.haveChannel {
		return fmt.Errorf("catalogdb: topic %q arrived with no channel context", item.Topic)
	}
	id, err := getOrInsertTopic(idx.tx, item.Topic, idx.channelID)
	if err != nil {
		return err
	}
	idx.topicID = id
	idx.haveTopic = true
	return nil
}

func getOrInsertChannel(tx *sql.Tx, channel string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM channels WHERE channel = ?`, channel).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("catalogdb: lookup channel %q: %w", channel, err)
	}
	res, err := tx.Exec(`INSERT INTO channels (channel) VALUES (?)`, channel)
	if err != nil {
		return 0, fmt.Errorf("catalogdb: insert channel %q: %w", channel, err)
	}
	return res.LastInsertId()
}

func getOrInsertTopic(tx *sql.Tx, topic string, channelID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM topics WHERE topic = ? AND channel_id = ?`, topic, channelID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("catalogdb: lookup topic %q: %w", topic, err)
	}
	res, err := tx.Exec(`INSERT INTO topics (topic, channel_id) VALUES (?, ?)`, topic, channelID)
	if err != nil {
		return 0, fmt.Errorf("catalogdb: insert topic %q: %w", topic, err)
	}
	return res.LastInsertId()
}
