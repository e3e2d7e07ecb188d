package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWrite_HeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir)
	require.NoError(t, err)
	defer rec.Close()

	now := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	require.NoError(t, rec.Write("intake", Event{
		Stage: "accepted", Owner: "alice", Ref: "ref-1",
		Detail: "report.pdf", Elapsed: 1500 * time.Millisecond,
	}))
	require.NoError(t, rec.Write("intake", Event{
		Stage: "rejected", Owner: "bob", Ref: "", Detail: "empty file",
	}))

	rows := readRows(t, filepath.Join(dir, "intake", "2025-03-14.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"2025-03-14 10:30:00.000", "accepted", "alice", "ref-1", "report.pdf", "1500"}, rows[1])
	assert.Equal(t, "rejected", rows[2][1])
}

func TestWrite_SeparateFilePerCategoryAndDay(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir)
	require.NoError(t, err)
	defer rec.Close()

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return day }

	require.NoError(t, rec.Write("intake", Event{Stage: "accepted"}))
	require.NoError(t, rec.Write("worker", Event{Stage: "completed"}))

	rec.now = func() time.Time { return day.AddDate(0, 0, 1) }
	require.NoError(t, rec.Write("intake", Event{Stage: "accepted"}))

	assert.FileExists(t, filepath.Join(dir, "intake", "2025-03-14.csv"))
	assert.FileExists(t, filepath.Join(dir, "worker", "2025-03-14.csv"))
	assert.FileExists(t, filepath.Join(dir, "intake", "2025-03-15.csv"))
}

func TestWrite_AppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()

	rec, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, rec.Write("intake", Event{Stage: "accepted"}))
	require.NoError(t, rec.Close())

	// A second recorder on the same directory appends without repeating
	// the header.
	rec2, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, rec2.Write("intake", Event{Stage: "completed"}))
	require.NoError(t, rec2.Close())

	path := filepath.Join(dir, "intake", time.Now().Format("2006-01-02")+".csv")
	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NoError(t, rec.Write("intake", Event{Stage: "accepted"}))
	assert.NoError(t, rec.Close())
}
