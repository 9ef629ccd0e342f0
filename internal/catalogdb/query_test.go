package catalogdb

import (
	"testing"

	"github.com/filmindex/filmindex/internal/stream"
)

func TestQueryOrdersByTopicIDForChannelSort(t *testing.T) {
	db := openTestDB(t)
	// Two channels whose names would sort the opposite way to their
	// topic_id allocation order, to make the topic_id-based Channel sort
	// observable: channel "Z" is upserted (and so gets the lower topic_id)
	// before channel "A".
	items := []stream.Item{
		{Channel: "Z", Topic: "T1", Title: "from Z", URL: "https://ex.org/z", Website: "https://ex.org"},
		{Channel: "A", Topic: "T2", Title: "from A", URL: "https://ex.org/a", Website: "https://ex.org"},
	}
	runFullUpdate(t, db, items)

	var ids []int64
	if err := db.Query("", "", "", SortChannel, Ascending, func(id int64) { ids = append(ids, id) }); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want 2", ids)
	}
	// Ascending-by-Channel orders by topic_id, not channel name, so the
	// show for "Z" (topic_id 1) sorts before the show for "A" (topic_id 2)
	// even though "A" < "Z" lexically.
	if ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("ids = %v, want [1 2] (topic_id order, not channel-name order)", ids)
	}
}

func TestQueryTopicSortOrdersByTopicName(t *testing.T) {
	db := openTestDB(t)
	items := []stream.Item{
		{Channel: "A", Topic: "Zebra", Title: "z show", URL: "https://ex.org/1", Website: "https://ex.org"},
		{Channel: "A", Topic: "Alpha", Title: "a show", URL: "https://ex.org/2", Website: "https://ex.org"},
	}
	runFullUpdate(t, db, items)

	var titles []int64
	if err := db.Query("", "", "", SortTopic, Ascending, func(id int64) { titles = append(titles, id) }); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(titles) != 2 || titles[0] != 2 || titles[1] != 1 {
		t.Fatalf("ids = %v, want [2 1] (Alpha before Zebra)", titles)
	}
}

func TestQueryFiltersByChannelTopicAndTitlePrefix(t *testing.T) {
	db := openTestDB(t)
	items := []stream.Item{
		{Channel: "ARD", Topic: "News", Title: "Tagesschau", URL: "https://ex.org/1", Website: "https://ex.org"},
		{Channel: "ZDF", Topic: "News", Title: "Heute", URL: "https://ex.org/2", Website: "https://ex.org"},
		{Channel: "ARD", Topic: "Sport", Title: "Sportschau", URL: "https://ex.org/3", Website: "https://ex.org"},
	}
	runFullUpdate(t, db, items)

	var ids []int64
	err := db.Query("ARD", "", "", SortDate, Ascending, func(id int64) { ids = append(ids, id) })
	if err != nil {
		t.Fatalf("Query by channel: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("channel-filtered ids = %v, want 2 results", ids)
	}

	ids = nil
	err = db.Query("", "News", "", SortDate, Ascending, func(id int64) { ids = append(ids, id) })
	if err != nil {
		t.Fatalf("Query by topic: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("topic-filtered ids = %v, want 2 results", ids)
	}

	ids = nil
	err = db.Query("", "", "Tages", SortDate, Ascending, func(id int64) { ids = append(ids, id) })
	if err != nil {
		t.Fatalf("Query by title prefix: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("title-filtered ids = %v, want [1]", ids)
	}
}

func TestSchemaWipeResetsNeedsUpdateAndChannels(t *testing.T) {
	dir := t.TempDir()
	db, _, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	runFullUpdate(t, db, []stream.Item{
		{Channel: "A", Topic: "T", Title: "x", URL: "https://ex.org/1", Website: "https://ex.org"},
	})
	if _, err := db.conn.Exec(`PRAGMA user_version = 0`); err != nil {
		t.Fatalf("force stale version: %v", err)
	}
	db.Close()

	db2, needsUpdate, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	if !needsUpdate {
		t.Fatal("needsUpdate should be true after a schema-version wipe")
	}

	var channels []string
	if err := db2.Channels(func(c string) { channels = append(channels, c) }); err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("channels = %v, want empty after wipe", channels)
	}
}
