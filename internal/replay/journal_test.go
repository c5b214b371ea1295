package replay

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r io.Reader) []Record {
	t.Helper()
	reader, err := NewReader(r)
	require.NoError(t, err)
	defer reader.Close()

	var out []Record
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

// TestJournalRoundTrip проверяет запись и чтение кадров в исходном порядке
func TestJournalRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	j, err := NewJournal(&buf)
	require.NoError(t, err)
	j.now = func() time.Time { return time.UnixMilli(1234) }

	require.NoError(t, j.Record("out", []byte(`{"type":"join","playerName":"hero"}`)))
	require.NoError(t, j.Record("in", []byte(`{"type":"init","data":{"clientId":"p1"}}`)))
	require.NoError(t, j.Record("in", []byte{0xff, 0x00, 0x01}))
	assert.Equal(t, 3, j.Records())
	require.NoError(t, j.Close())

	records := readAll(t, &buf)
	require.Len(t, records, 3)

	assert.Equal(t, "out", records[0].Dir)
	assert.Equal(t, int64(1234), records[0].At)
	assert.JSONEq(t, `{"type":"join","playerName":"hero"}`, string(records[0].Payload()))

	assert.Equal(t, "in", records[1].Dir)
	assert.JSONEq(t, `{"type":"init","data":{"clientId":"p1"}}`, string(records[1].Payload()))

	assert.Empty(t, records[2].Frame)
	assert.Equal(t, []byte{0xff, 0x00, 0x01}, records[2].Payload(), "бинарный кадр сохраняется как есть")
}

// TestJournalClosed проверяет отказ записи после закрытия
func TestJournalClosed(t *testing.T) {
	j, err := NewJournal(io.Discard)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "повторное закрытие допустимо")

	assert.Error(t, j.Record("in", []byte(`{}`)))
}

// TestJournalFile проверяет журнал на диске и конкурентную запись
func TestJournalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	j, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 25; k++ {
				_ = j.Record("in", []byte(`{"type":"ping"}`))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, j.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	assert.Len(t, readAll(t, file), 100)
}

// TestReaderRejectsGarbage проверяет ошибку на повреждённой строке
func TestReaderRejectsGarbage(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewJournal(&buf)
	require.NoError(t, err)
	_, err = enc.buf.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	reader, err := NewReader(&buf)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Next()
	assert.ErrorContains(t, err, "replay line 1")
}
