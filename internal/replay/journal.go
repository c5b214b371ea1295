// Package replay пишет и читает журнал сетевых кадров сессии.
// Журнал это поток JSON строк, сжатый zstd.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Record одна запись журнала. Кадр, не являющийся JSON, хранится в Raw.
type Record struct {
	Dir   string          `json:"dir"`
	At    int64           `json:"at"`
	Frame json.RawMessage `json:"frame,omitempty"`
	Raw   []byte          `json:"raw,omitempty"`
}

// Payload возвращает байты кадра независимо от формы хранения
func (r Record) Payload() []byte {
	if len(r.Frame) > 0 {
		return r.Frame
	}
	return r.Raw
}

// Journal потокобезопасный писатель журнала
type Journal struct {
	mu      sync.Mutex
	file    io.Closer
	encoder *zstd.Encoder
	buf     *bufio.Writer
	now     func() time.Time
	records int
	closed  bool
}

// Open создаёт файл журнала (существующий перезаписывается)
func Open(path string) (*Journal, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create replay journal: %w", err)
	}

	j, err := NewJournal(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	j.file = file
	return j, nil
}

// NewJournal пишет журнал в произвольный поток. Close не закрывает w.
func NewJournal(w io.Writer) (*Journal, error) {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Journal{
		encoder: encoder,
		buf:     bufio.NewWriter(encoder),
		now:     time.Now,
	}, nil
}

// Record добавляет кадр в журнал
func (j *Journal) Record(direction string, frame []byte) error {
	rec := Record{Dir: direction}
	if json.Valid(frame) {
		rec.Frame = json.RawMessage(frame)
	} else {
		rec.Raw = frame
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New("replay journal closed")
	}
	rec.At = j.now().UnixMilli()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode replay record: %w", err)
	}
	if _, err := j.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write replay record: %w", err)
	}
	j.records++
	return nil
}

// Records возвращает число записанных кадров
func (j *Journal) Records() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

// Close сбрасывает буферы и завершает zstd поток
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	var errs []error
	if err := j.buf.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := j.encoder.Close(); err != nil {
		errs = append(errs, err)
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reader последовательно читает записи журнала
type Reader struct {
	decoder *zstd.Decoder
	scanner *bufio.Scanner
	line    int
}

// NewReader открывает zstd поток журнала
func NewReader(r io.Reader) (*Reader, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	scanner := bufio.NewScanner(decoder)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{decoder: decoder, scanner: scanner}, nil
}

// Next возвращает следующую запись или io.EOF
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Record{}, fmt.Errorf("replay line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// Close освобождает декодер
func (r *Reader) Close() {
	r.decoder.Close()
}
