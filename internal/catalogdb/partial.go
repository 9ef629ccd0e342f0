package catalogdb

import (
	"database/sql"
	"fmt"

	"github.com/filmindex/filmindex/internal/blobstore"
	"github.com/filmindex/filmindex/internal/metrics"
	"github.com/filmindex/filmindex/internal/stream"
)

// PartialDeleter implements the partial-update dedup rule from spec §4.6:
// before inserting an incoming item, scan the existing shows of its topic
// (up to maxShowID, the high-water mark captured before this update began)
// in id order, and delete the first one whose stored title and url match
// the incoming item exactly, tombstoning its FTS row too. Matching stops at
// the first hit; no more than one prior row is ever removed per item.
type PartialDeleter struct {
	maxShowID int64
	text      *blobstore.BlobFetcher
	urls      *blobstore.BlobFetcher
}

// NewPartialDeleter returns a Deleter bound to maxShowID, the shows sequence
// high-water mark captured before the incremental update's new rows exist.
func NewPartialDeleter(maxShowID int64) (*PartialDeleter, error) {
	text, err := blobstore.NewBlobFetcher()
	if err != nil {
		return nil, err
	}
	urls, err := blobstore.NewBlobFetcher()
	if err != nil {
		return nil, err
	}
	return &PartialDeleter{maxShowID: maxShowID, text: text, urls: urls}, nil
}

// Delete is a Deleter: it scans topicID's shows up to maxShowID and removes
// the first match for item's (title, url).
func (d *PartialDeleter) Delete(tx *sql.Tx, topicID int64, item stream.Item) error {
	src := txBlobSource{tx}

	rows, err := tx.Query(
		`SELECT id, text_blob_id, text_offset, url_blob_id, url_offset
		 FROM shows INDEXED BY shows_by_topic
		 WHERE topic_id = ? AND id <= ?
		 ORDER BY id`,
		topicID, d.maxShowID,
	)
	if err != nil {
		return fmt.Errorf("catalogdb: scan shows for partial update: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, textBlobID, urlBlobID int64
		var textOffset, urlOffset int
		if err := rows.Scan(&id, &textBlobID, &textOffset, &urlBlobID, &urlOffset); err != nil {
			return fmt.Errorf("catalogdb: scan show row: %w", err)
		}

		titles, err := d.text.Fetch(src, textBlobID, textOffset, 1)
		if err != nil {
			return fmt.Errorf("catalogdb: fetch title for show %d: %w", id, err)
		}
		if titles[0] != item.Title {
			continue
		}
		urls, err := d.urls.Fetch(src, urlBlobID, urlOffset, 1)
		if err != nil {
			return fmt.Errorf("catalogdb: fetch url for show %d: %w", id, err)
		}
		if urls[0] != item.URL {
			continue
		}

		if err := rows.Close(); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM shows WHERE id = ?`, id); err != nil {
			return fmt.Errorf("catalogdb: delete show %d: %w", id, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO shows_by_title (shows_by_title, rowid, title) VALUES ('delete', ?, ?)`,
			id, item.Title,
		); err != nil {
			return fmt.Errorf("catalogdb: tombstone fts row for show %d: %w", id, err)
		}
		metrics.ShowsDeleted.Inc()
		return nil
	}
	return rows.Err()
}

// txBlobSource adapts a transaction to blobstore.BlobSource.
type txBlobSource struct {
	tx *sql.Tx
}

func (s txBlobSource) ReadBlob(id int64) ([]byte, error) {
	var blob []byte
	err := s.tx.QueryRow(`SELECT blob FROM blobs WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: read blob %d: %w", id, err)
	}
	return blob, nil
}
