package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func writeHistoryDB(t *testing.T, path string, visits map[string]time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() = %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url LONGVARCHAR,
		title LONGVARCHAR,
		visit_count INTEGER DEFAULT 0 NOT NULL,
		last_visit_time INTEGER NOT NULL
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for url, ts := range visits {
		if _, err := db.Exec(`INSERT INTO urls (url, title, last_visit_time) VALUES (?, '', ?)`, url, toWebKit(ts)); err != nil {
			t.Fatalf("insert %s: %v", url, err)
		}
	}
}

func TestChromiumHistorySearch(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "History")
	writeHistoryDB(t, path, map[string]time.Time{
		"https://meet.google.com/abc-defg-hij":  now.Add(-5 * time.Minute),
		"https://meet.google.com/landing":       now.Add(-1 * time.Minute),
		"https://meet.google.com/old-meet-ing":  now.Add(-2 * time.Hour),
		"https://example.com/?q=meet.google":    now.Add(-2 * time.Minute),
	})

	h := NewChromiumHistoryFile(path)
	got, err := h.Search(context.Background(), Query{
		Text:       "meet.google.com/",
		StartTime:  now.Add(-15 * time.Minute),
		MaxResults: 100,
	})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() returned %d entries; want 2: %+v", len(got), got)
	}
	if got[0].URL != "https://meet.google.com/landing" {
		t.Fatalf("first entry = %q; want newest landing visit", got[0].URL)
	}
	if !got[1].LastVisitTime.Equal(now.Add(-5 * time.Minute)) {
		t.Fatalf("LastVisitTime = %v; want %v", got[1].LastVisitTime, now.Add(-5*time.Minute))
	}
}

func TestChromiumHistoryMaxResults(t *testing.T) {
	now := time.Now()
	path := filepath.Join(t.TempDir(), "History")
	writeHistoryDB(t, path, map[string]time.Time{
		"https://meet.google.com/aaa-bbbb-ccc": now.Add(-1 * time.Minute),
		"https://meet.google.com/ddd-eeee-fff": now.Add(-2 * time.Minute),
		"https://meet.google.com/ggg-hhhh-iii": now.Add(-3 * time.Minute),
	})

	got, err := NewChromiumHistoryFile(path).Search(context.Background(), Query{Text: "meet.google.com/", StartTime: now.Add(-time.Hour), MaxResults: 2})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() returned %d entries; want 2", len(got))
	}
}

func TestChromiumHistoryMissingFile(t *testing.T) {
	h := NewChromiumHistory(t.TempDir())
	if _, err := h.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Fatal("Search() error = nil; want missing file error")
	}
}

func TestWebKitTimeConversion(t *testing.T) {
	ts := time.Date(2025, 12, 1, 8, 30, 0, 123000, time.UTC)
	if got := fromWebKit(toWebKit(ts)); !got.Equal(ts) {
		t.Fatalf("fromWebKit(toWebKit()) = %v; want %v", got, ts)
	}
	if got := toWebKit(time.Unix(0, 0)); got != webkitEpochOffsetUS {
		t.Fatalf("toWebKit(unix epoch) = %d; want %d", got, webkitEpochOffsetUS)
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Search(context.Background(), Query{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Search() = %v; want ErrUnavailable", err)
	}
}
