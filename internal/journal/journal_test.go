package journal

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/monitor"
)

func TestTabClosedWritesRecordsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w.TabClosed(monitor.ClosureEvent{TabID: "a", URL: "https://zoom.us/j/1", Category: meeting.CategoryZoom, Reason: "zoom-timeout", Counted: true, At: at})
	w.TabClosed(monitor.ClosureEvent{TabID: "b", URL: "https://meet.google.com/", Category: meeting.CategoryMeet, Reason: monitor.ReasonPostMeetingImmediate, Error: "gone", At: at.Add(time.Second)})
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	got, err := readRecent(filepath.Join(dir, fileName), 10)
	if err != nil {
		t.Fatalf("readRecent() = %v", err)
	}
	want := []Record{
		{TabID: "b", URL: "https://meet.google.com/", Category: meeting.CategoryMeet, Reason: monitor.ReasonPostMeetingImmediate, Error: "gone", ClosedAt: at.Add(time.Second)},
		{TabID: "a", URL: "https://zoom.us/j/1", Category: meeting.CategoryZoom, Reason: "zoom-timeout", Counted: true, ClosedAt: at},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Record{}, "ID")); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("record IDs = %q, %q; want distinct non-empty", got[0].ID, got[1].ID)
	}
}

func TestRecentLimitAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)

	got, err := readRecent(path, 5)
	if err != nil || got != nil {
		t.Fatalf("readRecent(missing) = %v, %v; want nil, nil", got, err)
	}

	lines := []string{
		`{"id":"1","tab_id":"a"}`,
		`not json`,
		`{"id":"2","tab_id":"b"}`,
		`{"id":"3","tab_id":"c"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = readRecent(path, 2)
	if err != nil {
		t.Fatalf("readRecent() = %v", err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Fatalf("readRecent() = %+v; want ids 3, 2", got)
	}
}

func TestWriteAfterClose(t *testing.T) {
	w, err := Open(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Write(Record{ID: "x"}); err != ErrClosed {
		t.Fatalf("Write() after Close = %v; want ErrClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
}

func TestAcceptedWritesSurviveConcurrentClose(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	var accepted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 20; j++ {
				if w.Write(Record{ID: "x"}) == nil {
					accepted.Add(1)
				}
			}
		}()
	}
	close(start)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	wg.Wait()

	got, err := readRecent(filepath.Join(dir, fileName), 1000)
	if err != nil {
		t.Fatalf("readRecent() = %v", err)
	}
	if int64(len(got)) != accepted.Load() {
		t.Fatalf("records on disk = %d; accepted writes = %d", len(got), accepted.Load())
	}
}
