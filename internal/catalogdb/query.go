package catalogdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/filmindex/filmindex/internal/blobstore"
	"github.com/filmindex/filmindex/internal/metrics"
	"github.com/filmindex/filmindex/internal/stream"
)

// SortColumn is one of the closed set of columns query() can order by.
type SortColumn int

const (
	SortChannel SortColumn = iota
	SortTopic
	SortDate
	SortTime
	SortDuration
)

// SortOrder is ascending or descending.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// orderBy is the exact closed-set mapping from (column, order) to an ORDER
// BY clause. The Channel variants intentionally order by shows.topic_id
// rather than the channel's name — cheaper, and preserved for parity with
// prior behavior even though it looks surprising: two different channels
// whose topics happen to interleave in topic_id order will interleave in
// the result too. Their date/time tiebreak is always descending regardless
// of the requested order.
var orderBy = map[SortColumn]map[SortOrder]string{
	SortChannel: {
		Ascending:  "shows.topic_id ASC, shows.date DESC, shows.time DESC",
		Descending: "shows.topic_id DESC, shows.date DESC, shows.time DESC",
	},
	SortTopic: {
		Ascending:  "topics.topic ASC",
		Descending: "topics.topic DESC",
	},
	SortDate: {
		Ascending:  "shows.date ASC, shows.time ASC",
		Descending: "shows.date DESC, shows.time DESC",
	},
	SortTime: {
		Ascending:  "shows.time ASC",
		Descending: "shows.time DESC",
	},
	SortDuration: {
		Ascending:  "shows.duration ASC",
		Descending: "shows.duration DESC",
	},
}

// Channels invokes sink once per distinct channel name.
func (db *DB) Channels(sink func(channel string)) error {
	defer observeLatency("channels", time.Now())
	rows, err := db.conn.Query(`SELECT DISTINCT(channel) FROM channels`)
	if err != nil {
		return fmt.Errorf("catalogdb: query channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return fmt.Errorf("catalogdb: scan channel: %w", err)
		}
		sink(channel)
	}
	return rows.Err()
}

// Topics invokes sink once per distinct topic name under channels whose name
// has channelPrefix as a prefix (empty prefix matches every channel).
func (db *DB) Topics(channelPrefix string, sink func(topic string)) error {
	defer observeLatency("topics", time.Now())
	rows, err := db.conn.Query(
		`SELECT DISTINCT(topic) FROM channels, topics
		 WHERE channels.id = topics.channel_id AND channels.channel LIKE ? || '%'`,
		channelPrefix,
	)
	if err != nil {
		return fmt.Errorf("catalogdb: query topics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return fmt.Errorf("catalogdb: scan topic: %w", err)
		}
		sink(topic)
	}
	return rows.Err()
}

// Query invokes sink once per matching show id, in the order dictated by
// sortColumn/sortOrder. channel, topic, and title are prefix filters;
// an empty string skips that filter. title is matched via FTS5 prefix
// query against shows_by_title.
func (db *DB) Query(channel, topic, title string, sortColumn SortColumn, sortOrder SortOrder, sink func(id int64)) error {
	defer observeLatency("query", time.Now())
	byOrder, ok := orderBy[sortColumn]
	if !ok {
		return fmt.Errorf("catalogdb: unknown sort column %d", sortColumn)
	}
	order, ok := byOrder[sortOrder]
	if !ok {
		return fmt.Errorf("catalogdb: unknown sort order %d", sortOrder)
	}

	var filters []string
	var args []any
	if channel != "" {
		filters = append(filters, `channels.channel LIKE ? || '%'`)
		args = append(args, channel)
	}
	if topic != "" {
		filters = append(filters, `topics.topic LIKE ? || '%'`)
		args = append(args, topic)
	}
	if title != "" {
		filters = append(filters, `shows_by_title MATCH ? || '*'`)
		args = append(args, title)
	}

	query := `SELECT shows.id FROM channels, topics, shows, shows_by_title
		WHERE channels.id = topics.channel_id
		  AND topics.id = shows.topic_id
		  AND shows.id = shows_by_title.rowid`
	if len(filters) > 0 {
		query += " AND " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY " + order

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return fmt.Errorf("catalogdb: query shows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("catalogdb: scan show id: %w", err)
		}
		sink(id)
	}
	return rows.Err()
}

// Show is the full record returned by Fetch.
type Show struct {
	Channel     string
	Topic       string
	Title       string
	Description string
	Website     string
	URL         string
	URLSmall    *string
	URLLarge    *string
	Date        stream.Date
	Time        stream.Clock
	Duration    stream.Clock
}

// Fetcher resolves text/url blobs for Fetch. One Fetcher should be reused
// across many Fetch calls so its single-blob cache stays warm across
// successive requests for shows in the same blob.
type Fetcher struct {
	text *blobstore.BlobFetcher
	urls *blobstore.BlobFetcher
}

// NewFetcher returns a Fetcher with empty blob caches.
func NewFetcher() (*Fetcher, error) {
	text, err := blobstore.NewBlobFetcher()
	if err != nil {
		return nil, err
	}
	urls, err := blobstore.NewBlobFetcher()
	if err != nil {
		return nil, err
	}
	return &Fetcher{text: text, urls: urls}, nil
}

// Fetch resolves id to its full Show record, including the mask-gated url
// suffix fields.
func (db *DB) Fetch(f *Fetcher, id int64) (Show, error) {
	defer observeLatency("fetch", time.Now())
	tx, err := db.conn.Begin()
	if err != nil {
		return Show{}, fmt.Errorf("catalogdb: begin fetch transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		channel, topic                       string
		textBlobID, urlBlobID                int64
		textOffset, urlOffset                 int
		urlMask                               int
		julian                                int64
		timeSecs, durationSecs                int
	)
	err = tx.QueryRow(
		`SELECT channels.channel, topics.topic,
		        shows.text_blob_id, shows.text_offset,
		        shows.url_blob_id, shows.url_offset, shows.url_mask,
		        shows.date, shows.time, shows.duration
		 FROM channels, topics, shows
		 WHERE channels.id = topics.channel_id
		   AND topics.id = shows.topic_id
		   AND shows.id = ?`,
		id,
	).Scan(&channel, &topic, &textBlobID, &textOffset, &urlBlobID, &urlOffset, &urlMask,
		&julian, &timeSecs, &durationSecs)
	if err != nil {
		return Show{}, fmt.Errorf("catalogdb: fetch show %d: %w", id, err)
	}

	src := txBlobSource{tx}
	texts, err := f.text.Fetch(src, textBlobID, textOffset, 2)
	if err != nil {
		return Show{}, fmt.Errorf("catalogdb: fetch text for show %d: %w", id, err)
	}

	urlCount := 2 // url, website
	if urlMask&URLSmall != 0 {
		urlCount++
	}
	if urlMask&URLLarge != 0 {
		urlCount++
	}
	urls, err := f.urls.Fetch(src, urlBlobID, urlOffset, urlCount)
	if err != nil {
		return Show{}, fmt.Errorf("catalogdb: fetch urls for show %d: %w", id, err)
	}

	show := Show{
		Channel:     channel,
		Topic:       topic,
		Title:       texts[0],
		Description: texts[1],
		Date:        JulianDayToDate(julian),
		Time:        stream.Clock(timeSecs),
		Duration:    stream.Clock(durationSecs),
	}

	i := 0
	show.URL = urls[i]
	i++
	if urlMask&URLSmall != 0 {
		s := urls[i]
		show.URLSmall = &s
		i++
	}
	if urlMask&URLLarge != 0 {
		s := urls[i]
		show.URLLarge = &s
		i++
	}
	show.Website = urls[i]

	return show, tx.Commit()
}

func observeLatency(operation string, start time.Time) {
	metrics.QueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
