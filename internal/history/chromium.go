package history

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// webkitEpochOffsetUS is the distance between 1601-01-01 (the zero point of
// Chromium's last_visit_time column) and the Unix epoch, in microseconds.
const webkitEpochOffsetUS int64 = 11644473600 * 1_000_000

// ChromiumHistory reads the History database of a Chromium profile.
type ChromiumHistory struct {
	dbPath string
}

// NewChromiumHistory returns a reader for <profileDir>/Default/History, or
// <profileDir>/History when profileDir already points at a profile.
func NewChromiumHistory(profileDir string) *ChromiumHistory {
	path := filepath.Join(profileDir, "Default", "History")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(profileDir, "History")
	}
	return &ChromiumHistory{dbPath: path}
}

// NewChromiumHistoryFile reads an explicit History database path.
func NewChromiumHistoryFile(dbPath string) *ChromiumHistory {
	return &ChromiumHistory{dbPath: dbPath}
}

// Search copies the database out from under the running browser (which
// holds an exclusive lock on it) and queries the copy.
func (h *ChromiumHistory) Search(ctx context.Context, q Query) ([]Entry, error) {
	if q.MaxResults <= 0 {
		q.MaxResults = 100
	}

	tmpDir, err := os.MkdirTemp("", "meetcloser-history-*")
	if err != nil {
		return nil, fmt.Errorf("history: temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			slog.Debug("history temp cleanup failed", "dir", tmpDir, "error", rmErr)
		}
	}()

	copyPath := filepath.Join(tmpDir, "History")
	if err := copyFile(h.dbPath, copyPath); err != nil {
		return nil, fmt.Errorf("history: copy %s: %w", h.dbPath, err)
	}
	for _, suffix := range []string{"-journal", "-wal"} {
		if err := copyFile(h.dbPath+suffix, copyPath+suffix); err != nil && !os.IsNotExist(err) {
			slog.Debug("history side file copy failed", "file", h.dbPath+suffix, "error", err)
		}
	}

	db, err := sql.Open("sqlite", copyPath)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT url, last_visit_time FROM urls
		 WHERE url LIKE ? ESCAPE '\' AND last_visit_time >= ?
		 ORDER BY last_visit_time DESC
		 LIMIT ?`,
		"%"+escapeLike(q.Text)+"%", toWebKit(q.StartTime), q.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			url     string
			visitUS int64
		)
		if err := rows.Scan(&url, &visitUS); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, Entry{URL: url, LastVisitTime: fromWebKit(visitUS)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

func toWebKit(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro() + webkitEpochOffsetUS
}

func fromWebKit(us int64) time.Time {
	return time.UnixMicro(us - webkitEpochOffsetUS).UTC()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
